package escrow

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/photon-storage/go-common/log"
	"github.com/pkg/errors"

	"github.com/gamevault/escrow-core/chain"
	"github.com/gamevault/escrow-core/database/orm"
	"github.com/gamevault/escrow-core/inventory"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPageSize     = 50
)

// errDeferred marks an event whose dependent record has not been
// observed yet. The kind's cursor stays parked before the event so the
// next tick re-delivers it.
var errDeferred = errors.New("event deferred pending prior record")

// EventSource yields escrow lifecycle events scoped to one contract
// package. Delivery is at-least-once; the reconciler turns it into
// exactly-once effect through idempotent store writes.
type EventSource interface {
	QueryEvents(
		ctx context.Context,
		kind chain.EventKind,
		since *chain.Cursor,
		limit int,
	) ([]*chain.RawEvent, *chain.Cursor, error)
}

// Config tunes the reconciler. The poll cadence is a deployment
// parameter, not a correctness one; every interval, including
// overlapping polls, must reconcile correctly.
type Config struct {
	PollInterval time.Duration
	PageSize     int
}

// Reconciler is the escrow state machine. One goroutine polls each
// event kind; kinds run in parallel, events within a kind apply
// serially in chain order, and all mutations for one escrow id are
// serialized through striped locks.
type Reconciler struct {
	store    *Store
	source   EventSource
	oracle   Oracle
	verifier *Verifier
	interval time.Duration
	pageSize int
	subs     *subscribers
	locks    [64]sync.Mutex
	quit     chan struct{}
	stopOnce sync.Once
}

// NewReconciler returns a reconciler over the given store, event
// source and inventory oracle.
func NewReconciler(
	store *Store,
	source EventSource,
	oracle Oracle,
	cfg Config,
) *Reconciler {
	if cfg.PollInterval <= 0 {
		// A zero interval would panic the poll loop's ticker.
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	return &Reconciler{
		store:    store,
		source:   source,
		oracle:   oracle,
		verifier: NewVerifier(store, oracle),
		interval: cfg.PollInterval,
		pageSize: cfg.PageSize,
		subs:     newSubscribers(),
		quit:     make(chan struct{}),
	}
}

// Store exposes the record store for read-side consumers.
func (r *Reconciler) Store() *Store {
	return r.store
}

// Verifier exposes on-demand transfer verification.
func (r *Reconciler) Verifier() *Verifier {
	return r.verifier
}

// Subscribe registers a callback for committed status changes and
// returns the handle that revokes it.
func (r *Reconciler) Subscribe(cb func(StatusChange)) Handle {
	return r.subs.add(cb)
}

// Unsubscribe revokes a subscription.
func (r *Reconciler) Unsubscribe(h Handle) {
	r.subs.remove(h)
}

// Run starts one poll loop per event kind and blocks until Stop is
// called or the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, kind := range chain.Kinds() {
		wg.Add(1)
		go func(kind chain.EventKind) {
			defer wg.Done()
			r.pollLoop(ctx, kind)
		}(kind)
	}

	wg.Wait()
}

// Stop exits every poll loop.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
}

func (r *Reconciler) pollLoop(ctx context.Context, kind chain.EventKind) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
		}

		if err := r.pollOnce(ctx, kind); err != nil {
			if errors.Is(err, chain.ErrBadContract) {
				log.Error("escrow contract misconfigured, poller stopped",
					"kind", kind,
					"error", err,
				)
				return
			}

			// Transient; cursor untouched, retried next tick.
			log.Error("fail on poll chain events",
				"kind", kind,
				"error", err,
			)
		}
	}
}

// pollOnce fetches one page of events after the persisted cursor and
// applies them in ascending chain order. The cursor advances past an
// event only after its effect committed; a deferred event parks the
// cursor so the tail of the page is re-polled later.
func (r *Reconciler) pollOnce(ctx context.Context, kind chain.EventKind) error {
	cursor, err := r.store.Cursor(kind)
	if err != nil {
		return err
	}

	events, _, err := r.source.QueryEvents(ctx, kind, cursor, r.pageSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		// Expected steady state for low-traffic periods.
		return nil
	}

	sortChainOrder(events)
	for _, ev := range events {
		if err := r.apply(ctx, ev); err != nil {
			if errors.Is(err, errDeferred) {
				log.Debug("event deferred until dependent record arrives",
					"kind", ev.Kind,
					"tx", ev.TxDigest,
				)
				return nil
			}

			return err
		}

		if err := r.store.SaveCursor(kind, ev.Cursor()); err != nil {
			return err
		}
	}

	return nil
}

// sortChainOrder rearranges a page from the node's descending order
// into ascending chain order, so same-id events apply in the order the
// chain committed them rather than poll-arrival order.
func sortChainOrder(events []*chain.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Checkpoint != events[j].Checkpoint {
			return events[i].Checkpoint < events[j].Checkpoint
		}

		return events[i].EventSeq < events[j].EventSeq
	})
}

func (r *Reconciler) apply(ctx context.Context, ev *chain.RawEvent) error {
	switch ev.Kind {
	case chain.EventEscrowInitialized:
		return r.applyInitialized(ctx, ev)

	case chain.EventPaymentDeposited:
		return r.applyDeposited(ev)

	case chain.EventPaymentClaimed:
		return r.applyClaimed(ev)

	case chain.EventEscrowCancelled:
		return r.applyCancelled(ev)
	}

	return errors.Errorf("unknown event kind %s", ev.Kind)
}

func (r *Reconciler) applyInitialized(
	ctx context.Context,
	ev *chain.RawEvent,
) error {
	payload := &chain.EscrowInitialized{}
	if err := ev.DecodePayload(payload); err != nil {
		return err
	}

	price, err := chain.ParseAmount(payload.Price)
	if err != nil {
		return err
	}

	rec := &orm.Escrow{
		EscrowID:      payload.EscrowID,
		BuyerAddress:  payload.Buyer,
		SellerAddress: payload.Seller,
		// Inventory accounts default to the chain addresses until the
		// external linking flow overrides them.
		BuyerInventoryID:  payload.Buyer,
		SellerInventoryID: payload.Seller,
		AssetID:           payload.AssetID,
		AssetName:         payload.AssetName,
		CollectionID:      payload.CollectionID,
		AssetAmount:       1,
		TradeReference:    payload.TradeReference,
		PriceBase:         price,
		Status:            orm.StatusInitialized,
		ChainTxDigest:     ev.TxDigest,
		BlobReference:     payload.IconRef,
	}

	r.captureBaseline(ctx, rec, payload)

	lock := r.lockFor(payload.EscrowID)
	lock.Lock()
	defer lock.Unlock()

	created, err := r.store.InsertIfAbsent(rec)
	if err != nil {
		return err
	}

	if !created {
		log.Debug("duplicate escrow initialization observed",
			"escrow_id", payload.EscrowID,
		)
		return nil
	}

	r.subs.notify(StatusChange{
		EscrowID: payload.EscrowID,
		From:     0,
		To:       orm.StatusInitialized,
		TxDigest: ev.TxDigest,
		Record:   rec,
		At:       time.Now().UTC(),
	})
	return nil
}

// captureBaseline snapshots both item-type counts exactly once, at
// initialization. Oracle unavailability degrades the baseline to zero
// and flags the record instead of failing the transition; transfer
// verification stays untrusted until an administrative correction.
func (r *Reconciler) captureBaseline(
	ctx context.Context,
	rec *orm.Escrow,
	payload *chain.EscrowInitialized,
) {
	key, err := r.oracle.ItemType(
		ctx,
		rec.SellerInventoryID,
		payload.CollectionID,
		payload.AssetID,
	)
	if err != nil {
		log.Warn("baseline capture degraded to zero",
			"escrow_id", payload.EscrowID,
			"error", err,
		)
		rec.BaselineMissing = true
		return
	}

	rec.ItemTypeKey = key.String()
	sellerCount, err := r.oracle.CountByType(
		ctx,
		rec.SellerInventoryID,
		payload.CollectionID,
		key,
	)
	if err != nil {
		log.Warn("baseline capture degraded to zero",
			"escrow_id", payload.EscrowID,
			"error", err,
		)
		rec.BaselineMissing = true
		return
	}

	buyerCount, err := r.oracle.CountByType(
		ctx,
		rec.BuyerInventoryID,
		payload.CollectionID,
		key,
	)
	if err != nil {
		log.Warn("baseline capture degraded to zero",
			"escrow_id", payload.EscrowID,
			"error", err,
		)
		rec.BaselineMissing = true
		return
	}

	rec.InitialSellerItemCount = sellerCount
	rec.InitialBuyerItemCount = buyerCount
}

func (r *Reconciler) applyDeposited(ev *chain.RawEvent) error {
	payload := &chain.PaymentDeposited{}
	if err := ev.DecodePayload(payload); err != nil {
		return err
	}

	return r.transition(
		ev,
		payload.EscrowID,
		[]orm.Status{orm.StatusInitialized},
		orm.StatusDeposited,
		nil, /* no deferral beyond record existence */
	)
}

func (r *Reconciler) applyClaimed(ev *chain.RawEvent) error {
	payload := &chain.PaymentClaimed{}
	if err := ev.DecodePayload(payload); err != nil {
		return err
	}

	return r.transition(
		ev,
		payload.EscrowID,
		[]orm.Status{orm.StatusDeposited},
		orm.StatusCompleted,
		// A claim observed while the record is still initialized is
		// cross-kind skew: the deposit will arrive, wait for it.
		func(rec *orm.Escrow) bool {
			return rec.Status == orm.StatusInitialized
		},
	)
}

func (r *Reconciler) applyCancelled(ev *chain.RawEvent) error {
	payload := &chain.EscrowCancelled{}
	if err := ev.DecodePayload(payload); err != nil {
		return err
	}

	return r.transition(
		ev,
		payload.EscrowID,
		[]orm.Status{orm.StatusInitialized, orm.StatusDeposited},
		orm.StatusCancelled,
		nil,
	)
}

// transition applies one guarded status move under the per-id lock.
// A missing record defers the event; an incompatible or terminal
// status is a logged no-op. The notification goes out only after the
// store write committed, and a failing subscriber cannot roll it back.
func (r *Reconciler) transition(
	ev *chain.RawEvent,
	escrowID string,
	from []orm.Status,
	to orm.Status,
	deferWhen func(*orm.Escrow) bool,
) error {
	lock := r.lockFor(escrowID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := r.store.Get(escrowID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Out-of-order delivery across kinds; the initialization
			// event has not been processed yet.
			return errDeferred
		}

		return err
	}

	if deferWhen != nil && deferWhen(rec) {
		return errDeferred
	}

	applied, err := r.store.UpdateStatus(escrowID, from, to, ev.TxDigest)
	if err != nil {
		return err
	}

	if !applied {
		if rec.Status.Terminal() {
			log.Info("ignoring event for terminal escrow",
				"escrow_id", escrowID,
				"kind", ev.Kind,
				"status", rec.Status,
			)
			return nil
		}

		// Duplicate delivery or a replayed transition.
		log.Info("ignoring event incompatible with escrow status",
			"escrow_id", escrowID,
			"kind", ev.Kind,
			"status", rec.Status,
			"reason", ErrInvalidTransition,
		)
		return nil
	}

	updated, err := r.store.Get(escrowID)
	if err != nil {
		return err
	}

	if to == orm.StatusCompleted {
		r.auditClaim(rec)
	}

	r.subs.notify(StatusChange{
		EscrowID: escrowID,
		From:     rec.Status,
		To:       to,
		TxDigest: ev.TxDigest,
		Record:   updated,
		At:       time.Now().UTC(),
	})
	return nil
}

// auditClaim logs the verifier's opinion of a chain-asserted claim.
// The chain event is recorded either way; consumers needing transfer
// certainty call Verify themselves.
func (r *Reconciler) auditClaim(rec *orm.Escrow) {
	key, err := inventory.ParseTypeKey(rec.ItemTypeKey)
	if err != nil {
		log.Warn("claim recorded without verifiable baseline",
			"escrow_id", rec.EscrowID,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sellerCurrent, err := r.oracle.CountByType(
		ctx,
		rec.SellerInventoryID,
		rec.CollectionID,
		key,
	)
	if err != nil {
		log.Warn("claim audit skipped, oracle unavailable",
			"escrow_id", rec.EscrowID,
			"error", err,
		)
		return
	}

	buyerCurrent, err := r.oracle.CountByType(
		ctx,
		rec.BuyerInventoryID,
		rec.CollectionID,
		key,
	)
	if err != nil {
		log.Warn("claim audit skipped, oracle unavailable",
			"escrow_id", rec.EscrowID,
			"error", err,
		)
		return
	}

	if !Decide(
		rec.InitialSellerItemCount,
		rec.InitialBuyerItemCount,
		sellerCurrent,
		buyerCurrent,
	) {
		log.Warn("payment claimed without verified asset transfer",
			"escrow_id", rec.EscrowID,
			"seller_current", sellerCurrent,
			"buyer_current", buyerCurrent,
		)
	}
}

func (r *Reconciler) lockFor(escrowID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(escrowID))
	return &r.locks[h.Sum32()%uint32(len(r.locks))]
}
