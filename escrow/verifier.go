package escrow

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gamevault/escrow-core/database/orm"
	"github.com/gamevault/escrow-core/inventory"
)

// Oracle is the inventory-service read surface the core depends on.
// Implementations must return inventory.ErrOracleUnavailable on
// transport failures rather than a silent zero or false.
type Oracle interface {
	HasItem(
		ctx context.Context,
		accountID string,
		collectionID string,
		itemInstanceID string,
	) (bool, error)
	CountByType(
		ctx context.Context,
		accountID string,
		collectionID string,
		key inventory.TypeKey,
	) (uint64, error)
	ItemType(
		ctx context.Context,
		accountID string,
		collectionID string,
		itemInstanceID string,
	) (inventory.TypeKey, error)
}

// VerificationResult reports one transfer verification. Both count
// pairs are carried for audit alongside the decision.
type VerificationResult struct {
	EscrowID        string    `json:"escrow_id"`
	Transferred     bool      `json:"transferred"`
	SellerInitial   uint64    `json:"seller_initial_count"`
	BuyerInitial    uint64    `json:"buyer_initial_count"`
	SellerCurrent   uint64    `json:"seller_current_count"`
	BuyerCurrent    uint64    `json:"buyer_current_count"`
	BaselineFlagged bool      `json:"baseline_flagged"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Decide is the pure transfer decision over baseline and current
// item-type counts. Transferred requires the seller to have lost at
// least one unit, the buyer to have gained at least one, and the
// buyer's gain to cover the seller's loss. The last condition keeps a
// seller sending the item elsewhere, or unrelated inventory churn,
// from counting as a transfer.
func Decide(
	sellerInitial uint64,
	buyerInitial uint64,
	sellerCurrent uint64,
	buyerCurrent uint64,
) bool {
	sellerDecrease := int64(sellerInitial) - int64(sellerCurrent)
	buyerIncrease := int64(buyerCurrent) - int64(buyerInitial)
	return sellerDecrease >= 1 &&
		buyerIncrease >= 1 &&
		buyerIncrease >= sellerDecrease
}

// Verifier decides whether the off-chain asset transfer behind an
// escrow actually happened, by diffing current oracle counts against
// the baseline captured at initialization.
type Verifier struct {
	store  *Store
	oracle Oracle
}

// NewVerifier returns a verifier over the given store and oracle.
func NewVerifier(store *Store, oracle Oracle) *Verifier {
	return &Verifier{
		store:  store,
		oracle: oracle,
	}
}

// Verify runs transfer verification for the escrow id. The record
// must exist and be in the deposited status; verifying earlier or
// after a terminal transition is a usage error. Oracle failure on
// either side is retryable and never interpreted as "not
// transferred".
func (v *Verifier) Verify(
	ctx context.Context,
	escrowID string,
) (*VerificationResult, error) {
	rec, err := v.store.Get(escrowID)
	if err != nil {
		return nil, err
	}

	if rec.Status != orm.StatusDeposited {
		return nil, errors.Wrapf(
			ErrInvalidState,
			"escrow %s is %s",
			escrowID,
			rec.Status,
		)
	}

	key, err := inventory.ParseTypeKey(rec.ItemTypeKey)
	if err != nil {
		return nil, errors.Wrapf(ErrMissingBaseline, "escrow %s", escrowID)
	}

	sellerCurrent, err := v.oracle.CountByType(
		ctx,
		rec.SellerInventoryID,
		rec.CollectionID,
		key,
	)
	if err != nil {
		return nil, err
	}

	buyerCurrent, err := v.oracle.CountByType(
		ctx,
		rec.BuyerInventoryID,
		rec.CollectionID,
		key,
	)
	if err != nil {
		return nil, err
	}

	return &VerificationResult{
		EscrowID:      escrowID,
		Transferred:   Decide(rec.InitialSellerItemCount, rec.InitialBuyerItemCount, sellerCurrent, buyerCurrent),
		SellerInitial: rec.InitialSellerItemCount,
		BuyerInitial:  rec.InitialBuyerItemCount,
		SellerCurrent: sellerCurrent,
		BuyerCurrent:  buyerCurrent,
		// A degraded zero baseline makes the decision untrustworthy
		// until an administrative correction.
		BaselineFlagged: rec.BaselineMissing,
		CheckedAt:       time.Now().UTC(),
	}, nil
}
