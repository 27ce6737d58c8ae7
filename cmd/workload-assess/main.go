package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/k8s-workload-assessor/pkg/config"
	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/logging"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/output"
	"github.com/opscart/k8s-workload-assessor/pkg/pipeline"
	"github.com/opscart/k8s-workload-assessor/pkg/reporter"
	"github.com/opscart/k8s-workload-assessor/pkg/scanner"
	"github.com/opscart/k8s-workload-assessor/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	// Global flags
	kubeconfig   string
	clusterID    string
	outputFormat string
	verbose      bool
	preset       string
	metricsAddr  string

	// Assessment flags
	namespace       string
	assessNamespace string
	allNamespaces   bool
	kind            string
	since           time.Duration
	saveResults     bool
	reportFormat    string
	reportOutput    string
	billingWindow   time.Duration

	// History flags
	historyLimit int

	cfg *config.Config
)

func main() {
	cfg = config.NewConfig()

	rootCmd := &cobra.Command{
		Use:           "workload-assess",
		Short:         "Assess what Kubernetes workloads cost and whether they do useful work",
		Long:          `Collects workload metrics from every available source, classifies request logs into business and background traffic, and attributes node cost to workloads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (default $KUBECONFIG, ~/.kube/config, in-cluster)")
	pf.StringVar(&clusterID, "cluster-id", cfg.ClusterID, "Cluster identifier")
	pf.StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&preset, "preset", "", "Lookback preset: dev, production, critical")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	assessCmd := &cobra.Command{
		Use:   "assess <name>",
		Short: "Assess one workload",
		Args:  cobra.ExactArgs(1),
		Run:   runAssess,
	}
	assessCmd.Flags().StringVarP(&assessNamespace, "namespace", "n", "default", "Namespace of the workload")
	assessCmd.Flags().StringVarP(&kind, "kind", "k", "Deployment", "Workload kind: Pod, Deployment, StatefulSet, DaemonSet, Cluster")
	assessCmd.Flags().DurationVar(&since, "since", 0, "Assessment window (default the configured lookback)")
	assessCmd.Flags().BoolVar(&saveResults, "save", false, "Save the assessment to the database")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Assess every workload in a namespace",
		Run:   runScan,
	}
	scanCmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to scan")
	scanCmd.Flags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "Scan all namespaces")
	scanCmd.Flags().DurationVar(&since, "since", 0, "Assessment window (default the configured lookback)")
	scanCmd.Flags().BoolVar(&saveResults, "save", false, "Save assessments to the database")
	scanCmd.Flags().StringVar(&reportFormat, "report-format", "", "Also write a report: html, csv")
	scanCmd.Flags().StringVar(&reportOutput, "report-output", "", "Report file (default reports/assessment-<namespace>-<timestamp>.<ext>)")

	capabilitiesCmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Show detected cluster capabilities and enabled collectors",
		Args:  cobra.NoArgs,
		Run:   runCapabilities,
	}

	costsCmd := &cobra.Command{
		Use:   "costs",
		Short: "Show node costs for the cluster",
		Args:  cobra.NoArgs,
		Run:   runCosts,
	}
	costsCmd.Flags().DurationVar(&billingWindow, "since", time.Hour, "Billing window")

	historyCmd := &cobra.Command{
		Use:   "history <namespace>",
		Short: "View past assessments",
		Args:  cobra.ExactArgs(1),
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of assessments to show")

	showCmd := &cobra.Command{
		Use:   "show <assessment-id>",
		Short: "Show a stored assessment",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}

	rootCmd.AddCommand(assessCmd, scanCmd, capabilitiesCmd, costsCmd, historyCmd, showCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() error {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
		cfg.Verbose = true
	}
	logging.SetDefaultStructuredLoggerWithLevel("workload-assess", version, level)

	switch preset {
	case "":
	case "dev":
		cfg.UseDevPreset()
	case "production":
		cfg.UseProductionPreset()
	case "critical":
		cfg.UseCriticalPreset()
	default:
		return fmt.Errorf("unknown preset %q", preset)
	}
	cfg.ClusterID = clusterID
	cfg.OutputFormat = outputFormat

	if err := cfg.Validate(); err != nil {
		return err
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}
	return nil
}

func fail(err error) {
	if code := cerrors.CodeOf(err); code != "" {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", code, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newScanner(ctx context.Context) *scanner.Scanner {
	clients, err := scanner.BuildClients(kubeconfig)
	if err != nil {
		fail(err)
	}
	s, err := scanner.New(ctx, cfg, clients)
	if err != nil {
		fail(err)
	}
	return s
}

func newHandler() output.Handler {
	h, err := output.New(cfg.OutputFormat, os.Stdout)
	if err != nil {
		fail(err)
	}
	return h
}

func openStore(ctx context.Context) storage.Store {
	store, err := storage.New(ctx, storage.Config{Type: "postgres", URL: cfg.DatabaseURL})
	if err != nil {
		fail(fmt.Errorf("failed to initialize storage: %w", err))
	}
	return store
}

func executionContext() pipeline.ExecutionContext {
	return pipeline.ExecutionContext{
		ClusterID: cfg.ClusterID,
		Principal: os.Getenv("USER"),
		RequestID: uuid.NewString(),
	}
}

func window() models.TimeRange {
	d := since
	if d <= 0 {
		d = cfg.MetricsDuration
	}
	return models.LastDuration(d, time.Now())
}

func runAssess(cmd *cobra.Command, args []string) {
	k, err := models.ParseWorkloadKind(kind)
	if err != nil {
		fail(err)
	}
	id := models.WorkloadIdentifier{Namespace: assessNamespace, Name: args[0], Kind: k}
	if k == models.KindCluster {
		id.Name = ""
	}

	ctx, cancel := signalContext()
	defer cancel()

	handler := newHandler()
	var store storage.Store
	if saveResults {
		store = openStore(ctx)
		defer store.Close()
	}

	s := newScanner(ctx)
	defer s.Close()

	a, err := s.Assess(ctx, id, window(), executionContext())
	if err != nil && a == nil {
		fail(err)
	}
	if err != nil {
		slog.Warn("assessment incomplete", slog.String("error", err.Error()))
	}

	if store != nil && a.State == models.StateDone {
		if err := store.SaveAssessment(ctx, a); err != nil {
			slog.Warn("failed to save assessment", slog.String("error", err.Error()))
		} else {
			slog.Info("saved assessment", slog.String("id", a.ID))
		}
	}

	if err := handler.DisplayAssessments([]*models.Assessment{a}); err != nil {
		fail(err)
	}
	if err != nil {
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, args []string) {
	if namespace == "" && !allNamespaces {
		fail(cerrors.New(cerrors.ErrCodeInvalidRequest, "either --namespace or --all-namespaces must be specified"))
	}
	if allNamespaces {
		namespace = ""
	}

	ctx, cancel := signalContext()
	defer cancel()

	handler := newHandler()
	var store storage.Store
	if saveResults {
		store = openStore(ctx)
		defer store.Close()
	}

	s := newScanner(ctx)
	defer s.Close()

	assessments, err := s.Scan(ctx, namespace, window(), executionContext())
	if err != nil {
		fail(err)
	}

	if store != nil {
		for _, a := range assessments {
			if err := store.SaveAssessment(ctx, a); err != nil {
				slog.Warn("failed to save assessment", slog.String("workload", a.Workload.String()), slog.String("error", err.Error()))
			}
		}
	}

	if err := handler.DisplayAssessments(assessments); err != nil {
		fail(err)
	}

	if reportFormat != "" {
		if err := writeReport(assessments); err != nil {
			fail(err)
		}
	}
}

func writeReport(assessments []*models.Assessment) error {
	format := reporter.ReportFormat(reportFormat)
	report := reporter.Generate(assessments, cfg.ClusterID, namespace)

	outputFile := reportOutput
	if outputFile == "" {
		nsName := namespace
		if nsName == "" {
			nsName = "all-namespaces"
		}
		outputFile = filepath.Join("reports", fmt.Sprintf("assessment-%s-%s.%s", nsName, time.Now().Format("20060102-150405"), format))
	}
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create reports directory: %w", err)
		}
	}

	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := reporter.Write(report, format, file); err != nil {
		return err
	}
	slog.Info("report generated", slog.String("format", strings.ToUpper(string(format))), slog.String("file", outputFile))
	return nil
}

func runCapabilities(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	s := newScanner(ctx)
	defer s.Close()

	caps, sources, err := s.Capabilities(ctx)
	if err != nil {
		fail(err)
	}
	if err := newHandler().DisplayCapabilities(caps, sources); err != nil {
		fail(err)
	}
}

func runCosts(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	s := newScanner(ctx)
	defer s.Close()

	costs, err := s.ClusterCosts(ctx, models.LastDuration(billingWindow, time.Now()))
	if err != nil {
		fail(err)
	}

	if err := newHandler().DisplayCosts(costs); err != nil {
		fail(err)
	}
}

func runHistory(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	store := openStore(ctx)
	defer store.Close()

	rows, err := store.ListAssessments(ctx, args[0], historyLimit)
	if err != nil {
		fail(err)
	}
	if err := newHandler().DisplayHistory(models.Aggregate(args[0], rows), rows); err != nil {
		fail(err)
	}
}

func runShow(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	store := openStore(ctx)
	defer store.Close()

	a, err := store.GetAssessment(ctx, args[0])
	if err != nil {
		fail(err)
	}
	if err := newHandler().DisplayAssessments([]*models.Assessment{a}); err != nil {
		fail(err)
	}
}
