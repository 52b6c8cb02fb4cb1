// Package event publishes escrow lifecycle events.
//
// The Runner publishes one Event per applied transaction. Subscribers receive
// events asynchronously on their own goroutine, in publish order:
//
//	bus := event.NewBus(event.DefaultBusConfig)
//	defer bus.Close()
//
//	bus.Subscribe([]string{event.Type("complete")}, event.HandlerFunc(
//	    func(ctx context.Context, evt event.Event) error {
//	        return notifySeller(evt.EscrowID)
//	    },
//	))
//
//	runner := escrow.NewRunner(engine, l, l, l, escrow.WithEvents(bus))
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TypePrefix prefixes every escrow event type.
const TypePrefix = "escrow."

// Type returns the event type for a transition name, "escrow.start" for
// "start".
func Type(transition string) string {
	return TypePrefix + transition
}

// Event records one applied escrow transaction.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	EscrowID  string    `json:"escrow_id"`
	Timestamp time.Time `json:"timestamp"`

	TxHash string `json:"tx_hash"`
	// Spent is the escrow output the transaction consumed. Empty for a
	// listing.
	Spent string `json:"spent,omitempty"`
	// Ref is the continuing escrow output. Empty once the escrow is closed.
	Ref    string `json:"ref,omitempty"`
	Status string `json:"status"`
	Task   string `json:"task,omitempty"`
}

// New creates an event for a transition with a fresh id.
func New(escrowID, transition, txHash, status string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      Type(transition),
		EscrowID:  escrowID,
		Timestamp: time.Now().UTC(),
		TxHash:    txHash,
		Status:    status,
	}
}

// Key identifies the transaction an event describes. Two events with the
// same key report the same ledger change.
func (e Event) Key() string {
	return e.Type + ":" + e.TxHash
}

// Closed reports whether the escrow has no continuing output.
func (e Event) Closed() bool {
	return e.Ref == ""
}

// Marshal serializes the event to JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher accepts events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Handler processes events.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
