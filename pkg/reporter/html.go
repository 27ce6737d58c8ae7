package reporter

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Workload Assessment - {{.ClusterName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background: #f5f7fa; color: #333; padding: 20px; }
        .container { max-width: 1400px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1); }
        .header { background: linear-gradient(135deg, #326ce5 0%, #1a4d8f 100%); color: white; padding: 40px; }
        .summary { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 20px; padding: 30px 40px; }
        .summary-card { border: 1px solid #e8eaed; border-radius: 12px; padding: 20px; }
        .summary-card .value { font-size: 2em; font-weight: 700; }
        .section { padding: 30px 40px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 10px; border-bottom: 1px solid #e8eaed; vertical-align: top; }
        th { background: #f8f9fa; }
        .badge { display: inline-block; padding: 2px 10px; border-radius: 12px; font-size: 0.85em; font-weight: 600; }
        .type-right_size { background: #e8f0fe; color: #1967d2; }
        .type-scale_down { background: #fce8e6; color: #c5221f; }
        .type-no_action { background: #f1f3f4; color: #5f6368; }
        .risk-high { background: #fce8e6; color: #c5221f; }
        .risk-medium { background: #fef7e0; color: #b06000; }
        .risk-low { background: #e6f4ea; color: #137333; }
        .risk-none { background: #f1f3f4; color: #5f6368; }
        .muted { color: #80868b; }
        .footer { padding: 20px 40px; color: #80868b; font-size: 0.9em; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h1>Workload Assessment</h1>
        <p><strong>Cluster:</strong> {{.ClusterName}} | <strong>Namespace:</strong> {{if .Namespace}}{{.Namespace}}{{else}}All Namespaces{{end}}</p>
        <p><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 15:04:05 MST"}}</p>
    </div>

    <div class="summary">
        <div class="summary-card"><h3>Workloads</h3><div class="value">{{.WorkloadCount}}</div></div>
        <div class="summary-card"><h3>Monthly Cost</h3><div class="value">${{money .TotalMonthlyCost}}</div></div>
        <div class="summary-card"><h3>Potential Savings</h3><div class="value">${{money .TotalSavings}}</div></div>
        <div class="summary-card"><h3>Idle</h3><div class="value">{{.IdleCount}}</div></div>
    </div>

    {{if .EnvironmentStats}}
    <div class="section">
        <h2>By Environment</h2>
        <table>
            <thead><tr><th>Environment</th><th>Workloads</th><th>Recommendations</th><th>Monthly Cost</th><th>Savings</th></tr></thead>
            <tbody>
            {{range .EnvironmentStats}}
            <tr><td>{{.Environment}}</td><td>{{.WorkloadCount}}</td><td>{{.Recommendations}}</td><td>${{money .MonthlyCost}}</td><td>${{money .TotalSavings}}</td></tr>
            {{end}}
            </tbody>
        </table>
    </div>
    {{end}}

    <div class="section">
        <h2>Assessments</h2>
        <table>
            <thead>
            <tr>
                <th>Workload</th><th>Activity</th><th>Cost/Month</th><th>Recommendation</th>
                <th>Current</th><th>Recommended</th><th>Savings/Month</th><th>Risk</th><th>Confidence</th>
            </tr>
            </thead>
            <tbody>
            {{range .Rows}}
            <tr>
                <td><strong>{{.Workload}}</strong><br><span class="muted">{{.Environment}}</span></td>
                <td>{{percent .BusinessRatio}} business<br><span class="muted">{{.Requests}} requests</span></td>
                <td>{{if .CostAvailable}}${{money .MonthlyCost}}{{else}}<span class="muted">{{.CostNote}}</span>{{end}}</td>
                <td>{{if .Type}}<span class="badge type-{{lower .Type}}">{{.Type}}</span>{{end}}</td>
                <td>{{.CurrentCPU}}m CPU<br>{{.CurrentMemory}}Mi RAM</td>
                <td>{{if .RecommendedCPU}}{{.RecommendedCPU}}m CPU<br>{{.RecommendedMem}}Mi RAM{{else}}<span class="muted">-</span>{{end}}</td>
                <td>${{money .Savings}}</td>
                <td>{{if .Risk}}<span class="badge risk-{{lower .Risk}}">{{.Risk}}</span>{{end}}</td>
                <td>{{.ConfidenceLevel}} ({{printf "%.2f" .Confidence}})</td>
            </tr>
            {{end}}
            </tbody>
        </table>
    </div>

    <div class="footer">Generated by <strong>k8s-workload-assessor</strong></div>
</div>
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower":   strings.ToLower,
	"money":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}).Parse(htmlTemplate))

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	if err := reportTemplate.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}
