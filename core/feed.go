package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rtsettle/core/events"
	"rtsettle/core/types"
	"rtsettle/observability"
)

// defaultFeedCapacity bounds the in-memory event history retained for RPC
// consumers. Older entries are dropped; the persisted ledger remains the
// authoritative audit trail.
const defaultFeedCapacity = 4096

// RecordedEvent is an emitted event annotated with a correlation identifier
// and the time it was observed.
type RecordedEvent struct {
	ID         string       `json:"id"`
	Sequence   uint64       `json:"sequence"`
	ObservedAt time.Time    `json:"observedAt"`
	Event      *types.Event `json:"event"`
}

// EventFeed records every event emitted by the engines, mirrors them into the
// structured log, and keeps a bounded in-memory history for RPC queries. It
// satisfies events.Emitter.
type EventFeed struct {
	mu       sync.RWMutex
	entries  []RecordedEvent
	sequence uint64
	capacity int
	logger   *slog.Logger
	metrics  interface {
		RecordTradeInitiated()
		RecordTradeApproved()
		RecordTradeExecuted()
		RecordTradeReversed()
		RecordTransfer(token string)
	}
}

// NewEventFeed constructs a feed logging through the supplied logger.
func NewEventFeed(logger *slog.Logger) *EventFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventFeed{
		capacity: defaultFeedCapacity,
		logger:   logger,
		metrics:  observability.SettlementMetrics(),
	}
}

type payloadEvent interface {
	events.Event
	Event() *types.Event
}

// Emit implements events.Emitter.
func (f *EventFeed) Emit(evt events.Event) {
	if f == nil || evt == nil {
		return
	}
	payload, ok := evt.(payloadEvent)
	if !ok {
		return
	}
	entry := RecordedEvent{
		ID:         uuid.NewString(),
		ObservedAt: time.Now().UTC(),
		Event:      payload.Event(),
	}

	f.mu.Lock()
	f.sequence++
	entry.Sequence = f.sequence
	f.entries = append(f.entries, entry)
	if len(f.entries) > f.capacity {
		f.entries = f.entries[len(f.entries)-f.capacity:]
	}
	f.mu.Unlock()

	f.observe(entry)
}

func (f *EventFeed) observe(entry RecordedEvent) {
	args := []any{
		slog.String("event", entry.Event.Type),
		slog.String("id", entry.ID),
	}
	for key, value := range entry.Event.Attributes {
		args = append(args, slog.String(key, value))
	}
	f.logger.Info("event emitted", args...)

	switch entry.Event.Type {
	case events.TypeTradeInitialized:
		f.metrics.RecordTradeInitiated()
	case events.TypeTradeApproved:
		f.metrics.RecordTradeApproved()
	case events.TypeTradeExecuted:
		f.metrics.RecordTradeExecuted()
	case events.TypeTradeReversed:
		f.metrics.RecordTradeReversed()
	case events.TypeTokenTransfer:
		f.metrics.RecordTransfer(entry.Event.Attributes["token"])
	}
}

// Events returns the retained history from the given sequence onwards.
func (f *EventFeed) Events(afterSequence uint64) []RecordedEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RecordedEvent, 0, len(f.entries))
	for _, entry := range f.entries {
		if entry.Sequence > afterSequence {
			out = append(out, entry)
		}
	}
	return out
}
