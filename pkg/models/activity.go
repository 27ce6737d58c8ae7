package models

import "time"

// RequestRecord is one HTTP request recovered from a log line
type RequestRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	UserAgent  *string   `json:"user_agent,omitempty"`
	SourceIP   *string   `json:"source_ip,omitempty"`
}

// UserAgentOrEmpty returns the user agent or ""
func (r RequestRecord) UserAgentOrEmpty() string {
	if r.UserAgent == nil {
		return ""
	}
	return *r.UserAgent
}

// PathStats counts requests for one path
type PathStats struct {
	Total    int            `json:"total"`
	Business int            `json:"business"`
	Methods  map[string]int `json:"methods"`
}

// BusinessActivity summarizes classified traffic over a window
type BusinessActivity struct {
	TotalRequests    int                  `json:"total_requests"`
	BusinessRequests int                  `json:"business_requests"`
	BusinessRatio    float64              `json:"business_ratio"`
	Paths            map[string]PathStats `json:"paths"`
	ExcludedByRule   map[string]int       `json:"excluded_by_rule"`
}

// BusinessRatio is business / max(total, 1). Zero total yields 0.
func BusinessRatio(business, total int) float64 {
	if total < 1 {
		total = 1
	}
	ratio := float64(business) / float64(total)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
