package escrow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gamevault/escrow-core/chain"
	"github.com/gamevault/escrow-core/database/orm"
)

func newRecord(id string) *orm.Escrow {
	return &orm.Escrow{
		EscrowID:               id,
		BuyerAddress:           "0xbuyer",
		SellerAddress:          "0xseller",
		BuyerInventoryID:       "0xbuyer",
		SellerInventoryID:      "0xseller",
		AssetID:                "asset-1",
		AssetName:              "AWP | Dragon Lore",
		CollectionID:           "730",
		AssetAmount:            1,
		ItemTypeKey:            "730:310777928:302028390",
		TradeReference:         "ref-1",
		PriceBase:              2_500_000_000,
		InitialSellerItemCount: 5,
		Status:                 orm.StatusInitialized,
	}
}

func TestInsertIfAbsent(t *testing.T) {
	s := NewStore(newTestDB(t))

	created, err := s.InsertIfAbsent(newRecord("e1"))
	require.NoError(t, err)
	require.True(t, created)

	// Duplicate observation of the same id is a no-op, not an error.
	created, err = s.InsertIfAbsent(newRecord("e1"))
	require.NoError(t, err)
	require.False(t, created)

	recs, err := s.ListByParticipant("0xbuyer")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestUpdateStatusGuards(t *testing.T) {
	s := NewStore(newTestDB(t))

	_, err := s.InsertIfAbsent(newRecord("e1"))
	require.NoError(t, err)

	// Claim before deposit does not apply.
	applied, err := s.UpdateStatus(
		"e1",
		[]orm.Status{orm.StatusDeposited},
		orm.StatusCompleted,
		"tx-2",
	)
	require.NoError(t, err)
	require.False(t, applied)

	applied, err = s.UpdateStatus(
		"e1",
		[]orm.Status{orm.StatusInitialized},
		orm.StatusDeposited,
		"tx-1",
	)
	require.NoError(t, err)
	require.True(t, applied)

	rec, err := s.Get("e1")
	require.NoError(t, err)
	require.Equal(t, orm.StatusDeposited, rec.Status)
	require.Equal(t, "tx-1", rec.ChainTxDigest)

	// Replaying the deposit is a no-op.
	applied, err = s.UpdateStatus(
		"e1",
		[]orm.Status{orm.StatusInitialized},
		orm.StatusDeposited,
		"tx-1",
	)
	require.NoError(t, err)
	require.False(t, applied)

	// Terminal statuses accept no further transition.
	applied, err = s.UpdateStatus(
		"e1",
		[]orm.Status{orm.StatusDeposited},
		orm.StatusCompleted,
		"tx-2",
	)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.UpdateStatus(
		"e1",
		[]orm.Status{orm.StatusInitialized, orm.StatusDeposited},
		orm.StatusCancelled,
		"tx-3",
	)
	require.NoError(t, err)
	require.False(t, applied)

	rec, err = s.Get("e1")
	require.NoError(t, err)
	require.Equal(t, orm.StatusCompleted, rec.Status)
}

func TestGetNotFound(t *testing.T) {
	s := NewStore(newTestDB(t))

	_, err := s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusPartition(t *testing.T) {
	s := NewStore(newTestDB(t))

	statuses := []orm.Status{
		orm.StatusInitialized,
		orm.StatusInitialized,
		orm.StatusDeposited,
		orm.StatusCompleted,
		orm.StatusCancelled,
	}
	for i, st := range statuses {
		rec := newRecord(string(rune('a' + i)))
		rec.Status = st
		created, err := s.InsertIfAbsent(rec)
		require.NoError(t, err)
		require.True(t, created)
	}

	// Every record appears in exactly one status list.
	seen := make(map[string]int)
	total := 0
	for _, st := range orm.Statuses() {
		recs, err := s.ListByStatus(st)
		require.NoError(t, err)
		total += len(recs)
		for _, rec := range recs {
			seen[rec.EscrowID]++
		}
	}

	require.Equal(t, len(statuses), total)
	for id, n := range seen {
		require.Equal(t, 1, n, "escrow %s listed %d times", id, n)
	}

	counts, err := s.CountByStatus()
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[orm.StatusInitialized])
	require.Equal(t, int64(1), counts[orm.StatusDeposited])
	require.Equal(t, int64(1), counts[orm.StatusCompleted])
	require.Equal(t, int64(1), counts[orm.StatusCancelled])
}

func TestListByParticipant(t *testing.T) {
	s := NewStore(newTestDB(t))

	asBuyer := newRecord("e1")
	created, err := s.InsertIfAbsent(asBuyer)
	require.NoError(t, err)
	require.True(t, created)

	asSeller := newRecord("e2")
	asSeller.BuyerAddress = "0xother"
	asSeller.SellerAddress = "0xbuyer"
	created, err = s.InsertIfAbsent(asSeller)
	require.NoError(t, err)
	require.True(t, created)

	unrelated := newRecord("e3")
	unrelated.BuyerAddress = "0xother"
	unrelated.SellerAddress = "0xanother"
	created, err = s.InsertIfAbsent(unrelated)
	require.NoError(t, err)
	require.True(t, created)

	recs, err := s.ListByParticipant("0xbuyer")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	deposited := orm.StatusDeposited
	recs, total, err := s.ListPage("0xbuyer", &deposited, 0, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, recs)

	recs, total, err = s.ListPage("0xbuyer", nil, 0, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, recs, 1)
}

func TestSetBaseline(t *testing.T) {
	s := NewStore(newTestDB(t))

	rec := newRecord("e1")
	rec.ItemTypeKey = ""
	rec.InitialSellerItemCount = 0
	rec.BaselineMissing = true
	created, err := s.InsertIfAbsent(rec)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, s.SetBaseline("e1", "730:1:2", 5, 0))

	got, err := s.Get("e1")
	require.NoError(t, err)
	require.False(t, got.BaselineMissing)
	require.Equal(t, "730:1:2", got.ItemTypeKey)
	require.Equal(t, uint64(5), got.InitialSellerItemCount)

	// Correcting an unflagged record is rejected.
	require.ErrorIs(t, s.SetBaseline("e1", "730:1:2", 6, 0), ErrInvalidState)

	require.ErrorIs(t, s.SetBaseline("missing", "730:1:2", 1, 0), ErrNotFound)
}

func TestLinkInventory(t *testing.T) {
	s := NewStore(newTestDB(t))

	created, err := s.InsertIfAbsent(newRecord("e1"))
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, s.LinkInventory("e1", "steam-buyer", "steam-seller"))

	rec, err := s.Get("e1")
	require.NoError(t, err)
	require.Equal(t, "steam-buyer", rec.BuyerInventoryID)
	require.Equal(t, "steam-seller", rec.SellerInventoryID)

	require.ErrorIs(
		t,
		s.LinkInventory("missing", "steam-buyer", ""),
		ErrNotFound,
	)
}

func TestCursorRoundTrip(t *testing.T) {
	s := NewStore(newTestDB(t))

	cur, err := s.Cursor(chain.EventEscrowInitialized)
	require.NoError(t, err)
	require.Nil(t, cur)

	require.NoError(t, s.SaveCursor(
		chain.EventEscrowInitialized,
		&chain.Cursor{TxDigest: "tx-1", EventSeq: 2},
	))

	cur, err = s.Cursor(chain.EventEscrowInitialized)
	require.NoError(t, err)
	require.Equal(t, &chain.Cursor{TxDigest: "tx-1", EventSeq: 2}, cur)

	// Cursors advance in place, one row per kind.
	require.NoError(t, s.SaveCursor(
		chain.EventEscrowInitialized,
		&chain.Cursor{TxDigest: "tx-9", EventSeq: 0},
	))

	cur, err = s.Cursor(chain.EventEscrowInitialized)
	require.NoError(t, err)
	require.Equal(t, "tx-9", cur.TxDigest)

	other, err := s.Cursor(chain.EventPaymentDeposited)
	require.NoError(t, err)
	require.Nil(t, other)
}
