package storage

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// Store persists completed assessments
type Store interface {
	SaveAssessment(ctx context.Context, a *models.Assessment) error
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	// ListAssessments returns the newest first. An empty namespace lists all.
	ListAssessments(ctx context.Context, namespace string, limit int) ([]models.AssessmentSummary, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Type string // postgres, memory
	URL  string
}

// New opens the configured store
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "postgres", "":
		return NewPostgresStore(ctx, cfg.URL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// DefaultListLimit applies when a caller passes a non-positive limit
const DefaultListLimit = 50
