// Package telemetry records operational observations that outlive a
// request, starting with the AI dispatch audit trail.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/questmaster/internal/ai"
	"github.com/louisbranch/questmaster/internal/hitl/storage"
	"github.com/louisbranch/questmaster/internal/id"
)

// Emitter persists AI dispatch outcomes. It satisfies ai.Recorder and is
// a no-op when the store is nil, so wiring it is always safe.
type Emitter struct {
	store storage.DispatchStore
	clock func() time.Time
	idGen func() (string, error)
}

var _ ai.Recorder = (*Emitter)(nil)

// NewEmitter creates a new dispatch audit emitter.
func NewEmitter(store storage.DispatchStore) *Emitter {
	return &Emitter{store: store, clock: time.Now, idGen: id.NewID}
}

// RecordDispatch writes one audit row. Failures are logged, never
// propagated: audit must not take down the dispatch path.
func (e *Emitter) RecordDispatch(ctx context.Context, audit ai.DispatchAudit) {
	if e == nil || e.store == nil {
		return
	}

	recordID, err := e.idGen()
	if err != nil {
		log.Printf("telemetry: generate dispatch id: %v", err)
		return
	}

	record := storage.DispatchRecord{
		ID:        recordID,
		SessionID: audit.SessionID,
		Provider:  audit.Provider,
		Category:  audit.Category,
		Outcome:   audit.Outcome,
		Detail:    audit.Detail,
		Latency:   audit.Latency,
		CreatedAt: e.clock().UTC(),
	}
	if err := e.store.RecordDispatch(ctx, record); err != nil {
		log.Printf("telemetry: record dispatch: %v", err)
	}
}
