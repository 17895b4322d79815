package domain

import "time"

// ErrorAuditEntry is one business failure seen by the edge service, kept in
// arrival order.
type ErrorAuditEntry struct {
	ID         string
	Code       int
	Message    string
	AccountID  string
	PackageID  int64
	RecordedAt time.Time
}
