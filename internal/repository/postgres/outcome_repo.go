package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docscan/internal/domain"
	"docscan/internal/port"
)

type outcomeRepo struct {
	db *sqlx.DB
}

// NewOutcomeRepo creates a new PostgreSQL-backed OutcomeRepository.
func NewOutcomeRepo(db *sqlx.DB) port.OutcomeRepository {
	return &outcomeRepo{db: db}
}

// outcomeRow is the stored form of a ProcessingOutcome. The full outcome is
// kept as JSONB; status and score are copied out for querying.
type outcomeRow struct {
	DocumentID      uuid.UUID `db:"document_id"`
	Status          string    `db:"status"`
	Score           float64   `db:"score"`
	AcceptedBackend string    `db:"accepted_backend"`
	Outcome         []byte    `db:"outcome"`
}

func (r *outcomeRepo) Save(ctx context.Context, outcome *domain.ProcessingOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("outcomeRepo.Save marshal: %w", err)
	}
	row := outcomeRow{
		DocumentID:      outcome.DocumentID,
		Status:          string(outcome.Status),
		Score:           outcome.Breakdown.Score,
		AcceptedBackend: outcome.AcceptedBackend,
		Outcome:         payload,
	}

	query := `
		INSERT INTO processing_outcomes (
			document_id, status, score, accepted_backend, outcome, created_at, updated_at
		) VALUES (
			:document_id, :status, :score, :accepted_backend, :outcome, NOW(), NOW()
		)
		ON CONFLICT (document_id) DO UPDATE SET
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			accepted_backend = EXCLUDED.accepted_backend,
			outcome = EXCLUDED.outcome,
			updated_at = NOW()`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("outcomeRepo.Save: %w", err)
	}
	return nil
}

func (r *outcomeRepo) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*domain.ProcessingOutcome, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload,
		`SELECT outcome FROM processing_outcomes WHERE document_id = $1`, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("outcomeRepo.GetByDocumentID: %w", err)
	}

	var outcome domain.ProcessingOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		return nil, fmt.Errorf("outcomeRepo.GetByDocumentID unmarshal: %w", err)
	}
	return &outcome, nil
}
