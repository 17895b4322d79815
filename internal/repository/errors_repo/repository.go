package errors_repo

import (
	"context"

	"purchaseorders/internal/domain"
)

type ErrorRecordRepository interface {
	// Append stores entry and returns its stream id.
	Append(ctx context.Context, entry domain.ErrorAuditEntry) (string, error)
	// List returns up to count entries recorded after the entry with id after, oldest
	// first. An empty after starts from the beginning.
	List(ctx context.Context, after string, count int64) ([]domain.ErrorAuditEntry, error)
}
