package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL. The full assessment is
// kept as JSONB; listing columns are denormalized from it.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, pings and applies migrations
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// migrate applies every embedded migration in name order. Migrations are
// idempotent.
func (s *PostgresStore) migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		schema, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", name, err)
		}
	}
	return nil
}

// SaveAssessment inserts or replaces an assessment
func (s *PostgresStore) SaveAssessment(ctx context.Context, a *models.Assessment) error {
	prepare(a)
	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	sum := models.Summarize(a)
	var monthly *float64
	if sum.CostAvailable {
		monthly = &sum.MonthlyCost
	}

	query := `
		INSERT INTO assessments (
			id, cluster_id, namespace, workload_name, workload_kind,
			state, business_ratio, monthly_cost, recommendation,
			potential_saving, confidence, record, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			business_ratio = EXCLUDED.business_ratio,
			monthly_cost = EXCLUDED.monthly_cost,
			recommendation = EXCLUDED.recommendation,
			potential_saving = EXCLUDED.potential_saving,
			confidence = EXCLUDED.confidence,
			record = EXCLUDED.record
	`
	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.ClusterID, a.Workload.Namespace, a.Workload.Name, string(a.Workload.Kind),
		string(a.State), sum.BusinessRatio, monthly, string(sum.Recommendation),
		sum.PotentialSaving, sum.Confidence, string(record), a.CreatedAt,
	)
	return err
}

// GetAssessment loads one assessment by ID
func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeInvalidRequest, fmt.Sprintf("invalid assessment id %q", id), err)
	}

	var record []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM assessments WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerrors.New(cerrors.ErrCodeNotFound, "assessment not found: "+id)
	}
	if err != nil {
		return nil, err
	}

	var a models.Assessment
	if err := json.Unmarshal(record, &a); err != nil {
		return nil, fmt.Errorf("failed to decode assessment %s: %w", id, err)
	}
	return &a, nil
}

// ListAssessments lists summaries for a namespace
func (s *PostgresStore) ListAssessments(ctx context.Context, namespace string, limit int) ([]models.AssessmentSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, namespace, workload_name, workload_kind, state,
			business_ratio, monthly_cost, recommendation,
			potential_saving, confidence, created_at
		FROM assessments
		WHERE ($1 = '' OR namespace = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, namespace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.AssessmentSummary
	for rows.Next() {
		var (
			sum         models.AssessmentSummary
			kind, state string
			rec         string
			monthlyCost sql.NullFloat64
		)
		err := rows.Scan(
			&sum.ID, &sum.Workload.Namespace, &sum.Workload.Name, &kind, &state,
			&sum.BusinessRatio, &monthlyCost, &rec,
			&sum.PotentialSaving, &sum.Confidence, &sum.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		sum.Workload.Kind = models.WorkloadKind(kind)
		sum.State = models.AssessmentState(state)
		sum.Recommendation = models.RecommendationType(rec)
		if monthlyCost.Valid {
			sum.CostAvailable = true
			sum.MonthlyCost = monthlyCost.Float64
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func prepare(a *models.Assessment) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
}
