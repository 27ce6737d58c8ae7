package extractor

import (
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"k8s.io/utils/ptr"
)

// Pattern recognizes one log line format. Parse returns a record whose
// Timestamp is zero when the format carries no time of its own.
type Pattern interface {
	Name() string
	Parse(line string) (models.RequestRecord, bool)
}

// DefaultPatterns is the built-in order: positional access logs, key=value, JSON
func DefaultPatterns() []Pattern {
	return []Pattern{AccessLogPattern{}, KeyValuePattern{}, JSONPattern{}}
}

// clfLayouts are the Apache/nginx time_local forms, with and without zone
var clfLayouts = []string{
	"02/Jan/2006:15:04:05 -0700",
	"02/Jan/2006:15:04:05",
}

func parseCLFTime(s string) time.Time {
	for _, layout := range clfLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// AccessLogPattern parses Common and Combined Log Format, as written by
// nginx, Apache and most ingress controllers.
type AccessLogPattern struct{}

var accessLogRe = regexp.MustCompile(
	`^(\S+) \S+ \S+ \[([^\]]+)\] "(\S+) (\S+)[^"]*" (\d{3}) (?:\d+|-)(?: "[^"]*" "([^"]*)")?`)

func (AccessLogPattern) Name() string { return "access-log" }

func (AccessLogPattern) Parse(line string) (models.RequestRecord, bool) {
	m := accessLogRe.FindStringSubmatch(line)
	if m == nil {
		return models.RequestRecord{}, false
	}
	status, _ := strconv.Atoi(m[5])
	rec := models.RequestRecord{
		Timestamp:  parseCLFTime(m[2]),
		Method:     m[3],
		Path:       m[4],
		StatusCode: status,
		SourceIP:   optional(m[1]),
	}
	rec.UserAgent = optional(m[6])
	return rec, true
}

// KeyValuePattern parses logfmt-style lines: key=value pairs, values
// optionally double-quoted.
type KeyValuePattern struct{}

func (KeyValuePattern) Name() string { return "key-value" }

var (
	methodKeys = []string{"method", "http_method", "verb", "request_method", "requestMethod"}
	pathKeys   = []string{"path", "uri", "request_uri", "url", "http_path", "requestUrl", "requestUri"}
	statusKeys = []string{"status", "status_code", "http_status", "statusCode", "code"}
	agentKeys  = []string{"user_agent", "http_user_agent", "ua", "userAgent", "useragent"}
	ipKeys     = []string{"remote_addr", "client_ip", "source_ip", "remote_ip", "ip", "remoteIp", "clientIP"}
	timeKeys   = []string{"time", "ts", "timestamp", "@timestamp"}

	jsonMethodKeys = slices.Concat(methodKeys, []string{"httpRequest.requestMethod", "http.request.method", "request.method"})
	jsonPathKeys   = slices.Concat(pathKeys, []string{"httpRequest.requestUrl", "url.path", "url.original", "request.path", "request.uri"})
	jsonStatusKeys = slices.Concat(statusKeys, []string{"httpRequest.status", "http.response.status_code", "response.status"})
	jsonAgentKeys  = slices.Concat(agentKeys, []string{"httpRequest.userAgent", "user_agent.original"})
	jsonIPKeys     = slices.Concat(ipKeys, []string{"httpRequest.remoteIp", "client.ip", "source.ip"})
)

func (KeyValuePattern) Parse(line string) (models.RequestRecord, bool) {
	kv := parseLogfmt(line)
	if len(kv) == 0 {
		return models.RequestRecord{}, false
	}

	method, path := first(kv, methodKeys), first(kv, pathKeys)
	if method == "" || path == "" {
		// request="GET /path HTTP/1.1"
		if req := strings.Fields(kv["request"]); len(req) >= 2 {
			method, path = req[0], req[1]
		}
	}
	status, err := strconv.Atoi(first(kv, statusKeys))
	if method == "" || path == "" || err != nil {
		return models.RequestRecord{}, false
	}

	return models.RequestRecord{
		Timestamp:  parseTimeValue(first(kv, timeKeys)),
		Method:     method,
		Path:       path,
		StatusCode: status,
		UserAgent:  optional(first(kv, agentKeys)),
		SourceIP:   optional(first(kv, ipKeys)),
	}, true
}

// parseLogfmt splits key=value tokens. Bare words are ignored.
func parseLogfmt(line string) map[string]string {
	out := make(map[string]string)
	i, n := 0, len(line)
	for i < n {
		for i < n && line[i] == ' ' {
			i++
		}
		start := i
		for i < n && line[i] != '=' && line[i] != ' ' {
			i++
		}
		if i >= n || line[i] != '=' {
			continue
		}
		key := line[start:i]
		i++

		var value string
		if i < n && line[i] == '"' {
			i++
			var b strings.Builder
			for i < n && line[i] != '"' {
				if line[i] == '\\' && i+1 < n {
					i++
				}
				b.WriteByte(line[i])
				i++
			}
			i++ // closing quote
			value = b.String()
		} else {
			vs := i
			for i < n && line[i] != ' ' {
				i++
			}
			value = line[vs:i]
		}
		if key != "" {
			out[key] = value
		}
	}
	return out
}

// JSONPattern parses structured JSON log lines. It reads flat keys, the
// Google Cloud httpRequest object and ECS-style nested http fields.
type JSONPattern struct{}

func (JSONPattern) Name() string { return "json" }

func (JSONPattern) Parse(line string) (models.RequestRecord, bool) {
	if !strings.HasPrefix(line, "{") {
		return models.RequestRecord{}, false
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		return models.RequestRecord{}, false
	}

	method := lookupString(doc, jsonMethodKeys)
	path := lookupString(doc, jsonPathKeys)
	status, ok := lookupInt(doc, jsonStatusKeys)
	if method == "" || path == "" || !ok {
		return models.RequestRecord{}, false
	}

	rec := models.RequestRecord{
		Method:     method,
		Path:       path,
		StatusCode: status,
		UserAgent:  optional(lookupString(doc, jsonAgentKeys)),
		SourceIP:   optional(lookupString(doc, jsonIPKeys)),
	}
	for _, key := range timeKeys {
		if v, ok := lookup(doc, key); ok {
			rec.Timestamp = timeFromJSON(v)
			break
		}
	}
	return rec, true
}

// lookup resolves key as a literal top-level key first, then as a dotted path
func lookup(doc map[string]any, key string) (any, bool) {
	if v, ok := doc[key]; ok {
		return v, true
	}
	parts := strings.Split(key, ".")
	if len(parts) == 1 {
		return nil, false
	}
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func lookupString(doc map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := lookup(doc, k); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func lookupInt(doc map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		v, ok := lookup(doc, k)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n), true
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

func timeFromJSON(v any) time.Time {
	switch t := v.(type) {
	case string:
		return parseTimeValue(t)
	case float64:
		return unixTime(t)
	}
	return time.Time{}
}

// parseTimeValue accepts RFC 3339, CLF time and unix seconds or milliseconds
func parseTimeValue(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t := parseCLFTime(s); !t.IsZero() {
		return t
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return unixTime(f)
	}
	return time.Time{}
}

func unixTime(f float64) time.Time {
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}

func first(kv map[string]string, keys []string) string {
	for _, k := range keys {
		if v := kv[k]; v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" || s == "-" {
		return nil
	}
	return ptr.To(s)
}
