package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/questmaster/internal/hitl/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ListAlertsFilter narrows an alert listing. Zero values mean no filter.
type ListAlertsFilter struct {
	SessionID  string
	ActiveOnly bool
}

// AlertStore persists intervention alerts. Records are never deleted;
// resolved alerts are retained for audit.
type AlertStore interface {
	PutAlert(ctx context.Context, alert domain.Alert) error
	GetAlert(ctx context.Context, id string) (domain.Alert, error)
	ListAlerts(ctx context.Context, filter ListAlertsFilter) ([]domain.Alert, error)
}

// DispatchRecord is one audit row for an AI dispatch attempt.
type DispatchRecord struct {
	ID        string
	SessionID string
	Provider  string
	Category  string
	Outcome   string
	Detail    string
	Latency   time.Duration
	CreatedAt time.Time
}

// DispatchStore records AI dispatch outcomes for audit.
type DispatchStore interface {
	RecordDispatch(ctx context.Context, record DispatchRecord) error
	ListDispatches(ctx context.Context, sessionID string, limit int) ([]DispatchRecord, error)
}

// Store is the full HITL persistence surface.
type Store interface {
	AlertStore
	DispatchStore
	Close() error
}
