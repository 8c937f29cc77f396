package orm

import (
	"time"
)

// Status is the escrow lifecycle status. Transitions only move
// forward: initialized -> deposited -> completed, with cancellation
// allowed out of initialized or deposited. Completed and cancelled
// are terminal.
type Status int32

const (
	StatusInitialized Status = iota + 1
	StatusDeposited
	StatusCompleted
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusInitialized: "initialized",
	StatusDeposited:   "deposited",
	StatusCompleted:   "completed",
	StatusCancelled:   "cancelled",
}

var statusValues = map[string]Status{
	"initialized": StatusInitialized,
	"deposited":   StatusDeposited,
	"completed":   StatusCompleted,
	"cancelled":   StatusCancelled,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "unknown"
}

// StatusFromName maps the external status name to its enum value.
func StatusFromName(name string) (Status, bool) {
	s, ok := statusValues[name]
	return s, ok
}

// Terminal reports whether no further transition is accepted out of
// this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Statuses lists all lifecycle statuses.
func Statuses() []Status {
	return []Status{
		StatusInitialized,
		StatusDeposited,
		StatusCompleted,
		StatusCancelled,
	}
}

// Escrow is a gorm table definition representing one trade attempt.
// The chain-assigned escrow id is the join key between chain events,
// this table and verification queries; rows are never deleted,
// terminal statuses end the lifecycle.
type Escrow struct {
	ID                uint64 `gorm:"primary_key"`
	EscrowID          string `gorm:"uniqueIndex;size:128"`
	BuyerAddress      string `gorm:"index;size:128"`
	SellerAddress     string `gorm:"index;size:128"`
	BuyerInventoryID  string
	SellerInventoryID string
	AssetID           string
	AssetName         string
	CollectionID      string
	AssetAmount       uint64
	ItemTypeKey       string
	TradeReference    string
	PriceBase         uint64
	// Baseline item-type counts captured exactly once at the
	// initialized transition. All later transfer verification math
	// diffs against these.
	InitialSellerItemCount uint64
	InitialBuyerItemCount  uint64
	// BaselineMissing marks records whose baseline degraded to zero
	// because the oracle was unavailable at initialization. Transfer
	// verification is not trusted until the baseline is corrected.
	BaselineMissing bool
	Status          Status `gorm:"index"`
	ChainTxDigest   string
	BlobReference   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName changes the default table name.
func (Escrow) TableName() string {
	return "escrows"
}
