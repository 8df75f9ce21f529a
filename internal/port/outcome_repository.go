package port

import (
	"context"

	"github.com/google/uuid"

	"docscan/internal/domain"
)

// OutcomeRepository persists processing outcomes. Saving an outcome for a
// document that already has one replaces it.
type OutcomeRepository interface {
	Save(ctx context.Context, outcome *domain.ProcessingOutcome) error
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*domain.ProcessingOutcome, error)
}

// AttemptAuditRepository receives the fallback chain of each run. It never
// receives document content.
type AttemptAuditRepository interface {
	CreateBatch(ctx context.Context, documentID uuid.UUID, attempts []domain.Attempt) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.AttemptRecord, error)
}
