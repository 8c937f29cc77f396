package chain

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// EventKind identifies one escrow lifecycle event type emitted by the
// escrow contract module.
type EventKind string

const (
	EventEscrowInitialized EventKind = "EscrowInitialized"
	EventPaymentDeposited  EventKind = "PaymentDeposited"
	EventPaymentClaimed    EventKind = "PaymentClaimed"
	EventEscrowCancelled   EventKind = "EscrowCancelled"
)

// Kinds lists every event kind the reconciler polls, one poll stream
// per entry.
func Kinds() []EventKind {
	return []EventKind{
		EventEscrowInitialized,
		EventPaymentDeposited,
		EventPaymentClaimed,
		EventEscrowCancelled,
	}
}

// Cursor marks a position in one event kind's stream. The zero value
// means "from the beginning".
type Cursor struct {
	TxDigest string `json:"tx_digest"`
	EventSeq uint64 `json:"event_seq"`
}

// IsZero reports whether the cursor marks no position yet.
func (c Cursor) IsZero() bool {
	return c.TxDigest == "" && c.EventSeq == 0
}

// RawEvent is one chain event as returned by the node, payload still
// undecoded. Checkpoint and EventSeq together give the total order of
// events within a kind.
type RawEvent struct {
	TxDigest   string
	EventSeq   uint64
	Checkpoint uint64
	Kind       EventKind
	Payload    json.RawMessage
}

// Cursor returns the stream position of this event.
func (e *RawEvent) Cursor() *Cursor {
	return &Cursor{TxDigest: e.TxDigest, EventSeq: e.EventSeq}
}

// EscrowInitialized is the contract event opening a new escrow. The
// chain emits the full trade context only on this event; later events
// carry just the escrow id and the moved amount.
type EscrowInitialized struct {
	EscrowID       string `json:"escrow_id"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	AssetID        string `json:"asset_id"`
	AssetName      string `json:"asset_name"`
	CollectionID   string `json:"collection_id"`
	IconRef        string `json:"icon_ref"`
	TradeReference string `json:"trade_reference"`
	Price          string `json:"price"`
}

// PaymentDeposited is the contract event recording the buyer locking
// payment into the escrow.
type PaymentDeposited struct {
	EscrowID string `json:"escrow_id"`
	Buyer    string `json:"buyer"`
	Amount   string `json:"amount"`
}

// PaymentClaimed is the contract event recording the seller claiming
// the escrowed payment.
type PaymentClaimed struct {
	EscrowID string `json:"escrow_id"`
	Seller   string `json:"seller"`
	Amount   string `json:"amount"`
}

// EscrowCancelled is the contract event recording an abort and refund.
type EscrowCancelled struct {
	EscrowID     string `json:"escrow_id"`
	Buyer        string `json:"buyer"`
	RefundAmount string `json:"refund_amount"`
}

// DecodePayload unmarshals the raw event payload into the typed event
// struct matching its kind.
func (e *RawEvent) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", e.Kind)
	}

	return nil
}

// ParseAmount converts a chain monetary amount, an integer string in
// the smallest denomination, to its internal integer form. Conversion
// happens once at ingestion; storage stays integer.
func ParseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse chain amount %q", s)
	}

	return v, nil
}
