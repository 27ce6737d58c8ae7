package models

import (
	"fmt"
	"strings"
	"time"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"k8s.io/apimachinery/pkg/util/validation"
)

// WorkloadKind is the kind of measurement subject
type WorkloadKind string

const (
	KindPod         WorkloadKind = "Pod"
	KindDeployment  WorkloadKind = "Deployment"
	KindStatefulSet WorkloadKind = "StatefulSet"
	KindDaemonSet   WorkloadKind = "DaemonSet"
	KindCluster     WorkloadKind = "Cluster"
)

// ParseWorkloadKind accepts the kind case-insensitively, plus the short forms kubectl uses
func ParseWorkloadKind(s string) (WorkloadKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pod", "po":
		return KindPod, nil
	case "deployment", "deploy":
		return KindDeployment, nil
	case "statefulset", "sts":
		return KindStatefulSet, nil
	case "daemonset", "ds":
		return KindDaemonSet, nil
	case "cluster":
		return KindCluster, nil
	}
	return "", cerrors.New(cerrors.ErrCodeInvalidRequest, fmt.Sprintf("unknown workload kind %q", s))
}

// WorkloadIdentifier identifies the measurement subject across all sources
type WorkloadIdentifier struct {
	Name      string       `json:"name"`
	Namespace string       `json:"namespace"`
	Kind      WorkloadKind `json:"kind"`
}

func (w WorkloadIdentifier) String() string {
	if w.Kind == KindCluster {
		if w.Namespace == "" {
			return "cluster"
		}
		return "cluster/" + w.Namespace
	}
	return fmt.Sprintf("%s/%s/%s", w.Kind, w.Namespace, w.Name)
}

// Validate rejects identifiers no source could resolve.
// Cluster scope needs neither name nor namespace; namespace narrows it.
func (w WorkloadIdentifier) Validate() error {
	switch w.Kind {
	case KindPod, KindDeployment, KindStatefulSet, KindDaemonSet:
	case KindCluster:
		if w.Namespace != "" {
			return validateDNSLabel("namespace", w.Namespace)
		}
		return nil
	default:
		return cerrors.New(cerrors.ErrCodeInvalidRequest, fmt.Sprintf("unknown workload kind %q", w.Kind))
	}

	if err := validateDNSLabel("namespace", w.Namespace); err != nil {
		return err
	}
	if w.Name == "" {
		return cerrors.New(cerrors.ErrCodeInvalidRequest, "workload name is required")
	}
	if errs := validation.IsDNS1123Subdomain(w.Name); len(errs) > 0 {
		return cerrors.NewWithContext(cerrors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid workload name %q", w.Name),
			map[string]any{"errors": errs})
	}
	return nil
}

func validateDNSLabel(field, value string) error {
	if value == "" {
		return cerrors.New(cerrors.ErrCodeInvalidRequest, field+" is required")
	}
	if errs := validation.IsDNS1123Label(value); len(errs) > 0 {
		return cerrors.NewWithContext(cerrors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid %s %q", field, value),
			map[string]any{"errors": errs})
	}
	return nil
}

// TimeRange is the half-open window [Start, End)
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeRange builds a validated range
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	tr := TimeRange{Start: start, End: end}
	return tr, tr.Validate()
}

// LastDuration returns the window of length d ending at now
func LastDuration(d time.Duration, now time.Time) TimeRange {
	return TimeRange{Start: now.Add(-d), End: now}
}

// Validate enforces End > Start
func (t TimeRange) Validate() error {
	if t.Start.IsZero() || t.End.IsZero() {
		return cerrors.New(cerrors.ErrCodeInvalidRequest, "time range bounds must be set")
	}
	if !t.End.After(t.Start) {
		return cerrors.NewWithContext(cerrors.ErrCodeInvalidRequest, "time range end must be after start",
			map[string]any{"start": t.Start, "end": t.End})
	}
	return nil
}

// Contains reports whether ts falls inside [Start, End)
func (t TimeRange) Contains(ts time.Time) bool {
	return !ts.Before(t.Start) && ts.Before(t.End)
}

func (t TimeRange) Duration() time.Duration {
	return t.End.Sub(t.Start)
}
