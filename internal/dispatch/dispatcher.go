package dispatch

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"spa-system/internal/hub"
	"spa-system/internal/store"
)

// Dispatcher drains committed outbox events in commit order and broadcasts
// them to hub subscribers. A single dispatcher goroutine per process keeps
// delivery ordered per topic.
type Dispatcher struct {
	store        store.TransactionStore
	hub          *hub.Hub
	pollInterval time.Duration
	batchSize    int
	offset       store.OutboxOffset
}

func NewDispatcher(st store.TransactionStore, h *hub.Hub, pollInterval time.Duration, batchSize int) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{store: st, hub: h, pollInterval: pollInterval, batchSize: batchSize}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	offset, err := d.store.GetDispatchOffset(ctx)
	if err != nil {
		return err
	}
	d.offset = offset

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.drain(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("dispatch: drain failed: %v", err)
			}
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) error {
	for {
		events, err := d.store.ListOutboxEvents(ctx, d.offset, d.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, event := range events {
			d.deliver(event)
			d.offset = store.OutboxOffset{LastEventTime: event.CreatedAt, LastEventID: event.EventID}
		}
		if err := d.store.UpdateDispatchOffset(ctx, d.offset); err != nil {
			return err
		}
		if len(events) < d.batchSize {
			return nil
		}
	}
}

func (d *Dispatcher) deliver(event store.OutboxEvent) {
	topics := topicsFor(event.Type, event.Payload)
	if len(topics) == 0 {
		log.Printf("dispatch: no route for event type=%s id=%s", event.Type, event.EventID)
		return
	}

	message, err := json.Marshal(Envelope{
		Type:      event.Type,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		log.Printf("dispatch: encode event id=%s: %v", event.EventID, err)
		return
	}

	for _, topic := range topics {
		d.hub.Broadcast(topic, message)
	}
}

// Envelope is the wire frame pushed to realtime subscribers.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
