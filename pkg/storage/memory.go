package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// MemoryStore keeps assessments in process. Records are stored encoded so
// callers see the same round trip as with PostgresStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	rows    map[string]models.AssessmentSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
		rows:    make(map[string]models.AssessmentSummary),
	}
}

func (m *MemoryStore) SaveAssessment(_ context.Context, a *models.Assessment) error {
	prepare(a)
	record, err := json.Marshal(a)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[a.ID] = record
	m.rows[a.ID] = models.Summarize(a)
	return nil
}

func (m *MemoryStore) GetAssessment(_ context.Context, id string) (*models.Assessment, error) {
	m.mu.RLock()
	record, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, cerrors.New(cerrors.ErrCodeNotFound, "assessment not found: "+id)
	}

	var a models.Assessment
	if err := json.Unmarshal(record, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (m *MemoryStore) ListAssessments(_ context.Context, namespace string, limit int) ([]models.AssessmentSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	var out []models.AssessmentSummary
	for _, row := range m.rows {
		if namespace == "" || row.Workload.Namespace == namespace {
			out = append(out, row)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
