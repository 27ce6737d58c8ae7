// Package extractor recovers HTTP request records from raw container logs.
//
// Extraction is best-effort. Lines without a usable timestamp, lines outside
// the query window and lines no pattern recognizes are dropped and counted,
// never reported as errors.
package extractor

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

var httpMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
}

// Stats counts what happened to each input line
type Stats struct {
	Lines       int `json:"lines"`
	Records     int `json:"records"`
	NoTimestamp int `json:"no_timestamp"`
	OutOfRange  int `json:"out_of_range"`
	Unmatched   int `json:"unmatched"`
}

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Records += o.Records
	s.NoTimestamp += o.NoTimestamp
	s.OutOfRange += o.OutOfRange
	s.Unmatched += o.Unmatched
}

// Extractor applies an ordered list of patterns; the first match wins.
type Extractor struct {
	Patterns []Pattern
}

// New returns an extractor using patterns, or DefaultPatterns when none are given
func New(patterns ...Pattern) *Extractor {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Extractor{Patterns: patterns}
}

// Extract parses a multi-line payload into request records within tr
func (e *Extractor) Extract(payload string, tr models.TimeRange) []models.RequestRecord {
	records, _ := e.extract(payload, tr)
	return records
}

// ExtractLogs parses every payload and reports per-line outcomes
func (e *Extractor) ExtractLogs(logs []models.LogPayload, tr models.TimeRange) ([]models.RequestRecord, Stats) {
	var all []models.RequestRecord
	var total Stats
	for _, l := range logs {
		records, stats := e.extract(l.Data, tr)
		all = append(all, records...)
		total.add(stats)
	}
	if total.Lines > 0 {
		slog.Debug("extracted request records",
			slog.Int("lines", total.Lines),
			slog.Int("records", total.Records),
			slog.Int("no_timestamp", total.NoTimestamp),
			slog.Int("out_of_range", total.OutOfRange),
			slog.Int("unmatched", total.Unmatched))
	}
	return all, total
}

func (e *Extractor) extract(payload string, tr models.TimeRange) ([]models.RequestRecord, Stats) {
	var stats Stats
	var records []models.RequestRecord

	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Lines++

		rec, err := e.ParseLine(line)
		switch {
		case cerrors.IsCode(err, cerrors.ErrCodeMalformedLogLine):
			stats.Unmatched++
			continue
		case rec.Timestamp.IsZero():
			stats.NoTimestamp++
			continue
		case !tr.Contains(rec.Timestamp):
			stats.OutOfRange++
			continue
		}
		stats.Records++
		records = append(records, rec)
	}
	return records, stats
}

// ParseLine parses one line. A leading RFC 3339 or "2006-01-02 15:04:05"
// timestamp, as the container runtime prefixes, takes precedence over any
// time inside the message. A line no pattern recognizes yields a
// MALFORMED_LOG_LINE error.
func (e *Extractor) ParseLine(line string) (models.RequestRecord, error) {
	at, rest := leadingTimestamp(line)

	for _, p := range e.Patterns {
		rec, ok := p.Parse(rest)
		if !ok {
			continue
		}
		rec, ok = normalize(rec)
		if !ok {
			continue
		}
		if !at.IsZero() {
			rec.Timestamp = at
		}
		rec.Timestamp = rec.Timestamp.UTC()
		return rec, nil
	}
	return models.RequestRecord{}, cerrors.New(cerrors.ErrCodeMalformedLogLine, "no pattern matched")
}

// leadingTimestamp strips and returns a timestamp prefix, if any
func leadingTimestamp(line string) (time.Time, string) {
	token, rest, _ := strings.Cut(line, " ")
	if t, err := time.Parse(time.RFC3339Nano, token); err == nil {
		return t, strings.TrimLeft(rest, " ")
	}

	clock, tail, _ := strings.Cut(rest, " ")
	if t, err := time.Parse(time.DateTime, token+" "+clock); err == nil {
		return t, strings.TrimLeft(tail, " ")
	}
	return time.Time{}, line
}

// normalize validates method and status and reduces the target to a path
func normalize(rec models.RequestRecord) (models.RequestRecord, bool) {
	rec.Method = strings.ToUpper(rec.Method)
	if !httpMethods[rec.Method] {
		return rec, false
	}
	if rec.StatusCode < 100 || rec.StatusCode > 599 {
		return rec, false
	}

	target := rec.Path
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		u, err := url.Parse(target)
		if err != nil {
			return rec, false
		}
		target = u.Path
	}
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		target = "/"
	}
	if !strings.HasPrefix(target, "/") && target != "*" {
		return rec, false
	}
	rec.Path = target
	return rec, true
}
