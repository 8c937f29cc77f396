package escrow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gamevault/escrow-core/chain"
	"github.com/gamevault/escrow-core/database/orm"
	"github.com/gamevault/escrow-core/inventory"
)

// testDBSeq disambiguates tests that open more than one database;
// shared-cache DSNs are keyed process-wide, not per connection.
var testDBSeq uint64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s-%d?mode=memory&cache=shared",
		t.Name(),
		atomic.AddUint64(&testDBSeq, 1),
	)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orm.Escrow{}, &orm.EventCursor{}))
	return db
}

// fakeOracle is an in-memory inventory service. Counts are keyed by
// account id; every item shares one type key, which matches the
// single-trade scope of the reconciler tests.
type fakeOracle struct {
	mu     sync.Mutex
	key    inventory.TypeKey
	counts map[string]uint64
	items  map[string]string // itemID -> holding account
	down   bool
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		key:    inventory.TypeKey{AppID: "730", ClassID: "310777928", InstanceID: "302028390"},
		counts: make(map[string]uint64),
		items:  make(map[string]string),
	}
}

func (f *fakeOracle) setCount(account string, n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[account] = n
}

func (f *fakeOracle) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeOracle) HasItem(
	_ context.Context,
	accountID string,
	_ string,
	itemInstanceID string,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false, inventory.ErrOracleUnavailable
	}

	return f.items[itemInstanceID] == accountID, nil
}

func (f *fakeOracle) CountByType(
	_ context.Context,
	accountID string,
	_ string,
	key inventory.TypeKey,
) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return 0, inventory.ErrOracleUnavailable
	}

	if key != f.key {
		return 0, nil
	}

	return f.counts[accountID], nil
}

func (f *fakeOracle) ItemType(
	_ context.Context,
	accountID string,
	_ string,
	itemInstanceID string,
) (inventory.TypeKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return inventory.TypeKey{}, inventory.ErrOracleUnavailable
	}

	if f.items[itemInstanceID] != accountID {
		return inventory.TypeKey{}, inventory.ErrItemNotFound
	}

	return f.key, nil
}

// fakeSource replays a scripted ascending event stream per kind,
// serving pages after the cursor in the descending order the node
// uses.
type fakeSource struct {
	mu     sync.Mutex
	events map[chain.EventKind][]*chain.RawEvent
	fail   bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(map[chain.EventKind][]*chain.RawEvent),
	}
}

func (f *fakeSource) append(ev *chain.RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.Kind] = append(f.events[ev.Kind], ev)
}

func (f *fakeSource) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeSource) QueryEvents(
	_ context.Context,
	kind chain.EventKind,
	since *chain.Cursor,
	limit int,
) ([]*chain.RawEvent, *chain.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, nil, chain.ErrChainUnavailable
	}

	stream := f.events[kind]
	start := 0
	if since != nil && !since.IsZero() {
		for i, ev := range stream {
			if ev.TxDigest == since.TxDigest && ev.EventSeq == since.EventSeq {
				start = i + 1
				break
			}
		}
	}

	page := make([]*chain.RawEvent, 0, limit)
	for _, ev := range stream[start:] {
		if len(page) == limit {
			break
		}

		page = append(page, ev)
	}

	// Node order is newest first.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}

	next := since
	if len(page) > 0 {
		next = page[0].Cursor()
	}

	return page, next, nil
}
