package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docscan/internal/domain"
	"docscan/internal/port"
)

type attemptAuditRepo struct {
	db *sqlx.DB
}

// NewAttemptAuditRepo creates a new PostgreSQL-backed AttemptAuditRepository.
func NewAttemptAuditRepo(db *sqlx.DB) port.AttemptAuditRepository {
	return &attemptAuditRepo{db: db}
}

const attemptColumns = 12

func (r *attemptAuditRepo) CreateBatch(ctx context.Context, documentID uuid.UUID, attempts []domain.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(attempts))
	valueArgs := make([]interface{}, 0, len(attempts)*attemptColumns)

	for i, a := range attempts {
		base := i * attemptColumns
		placeholders := make([]string, attemptColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs,
			uuid.New(), documentID, i, a.Backend, a.Set, a.Degraded,
			string(a.ErrorKind), a.Error, a.DurationMS, a.MeanConfidence, a.Tokens, a.StartedAt)
	}

	query := fmt.Sprintf(
		`INSERT INTO processing_attempts (
			id, document_id, seq, backend, backend_set, degraded,
			error_kind, error_message, duration_ms, mean_confidence, token_count, started_at
		) VALUES %s`,
		strings.Join(valueStrings, ", "))

	if _, err := r.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("attemptAuditRepo.CreateBatch: %w", err)
	}
	return nil
}

func (r *attemptAuditRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.AttemptRecord, error) {
	records := []domain.AttemptRecord{}
	err := r.db.SelectContext(ctx, &records,
		`SELECT id, document_id, seq, backend, backend_set, degraded,
		        error_kind, error_message, duration_ms, mean_confidence, token_count,
		        started_at, created_at
		 FROM processing_attempts
		 WHERE document_id = $1
		 ORDER BY created_at, seq`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("attemptAuditRepo.ListByDocument: %w", err)
	}
	return records, nil
}
