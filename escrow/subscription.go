package escrow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamevault/escrow-core/database/orm"
)

// StatusChange is delivered to subscribers after a status transition
// committed to the store. Record is the post-transition snapshot, so
// consumers of sparse deposit/claim/cancel events still see the full
// trade context.
type StatusChange struct {
	EscrowID string
	From     orm.Status
	To       orm.Status
	TxDigest string
	Record   *orm.Escrow
	At       time.Time
}

// Handle identifies one subscription. The caller owns it and revokes
// delivery through Unsubscribe.
type Handle string

type subscribers struct {
	mu   sync.RWMutex
	subs map[Handle]func(StatusChange)
}

func newSubscribers() *subscribers {
	return &subscribers{
		subs: make(map[Handle]func(StatusChange)),
	}
}

func (s *subscribers) add(cb func(StatusChange)) Handle {
	h := Handle(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[h] = cb
	return h
}

func (s *subscribers) remove(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, h)
}

// notify invokes every callback in the caller's goroutine. The caller
// holds the per-escrow lock, which keeps delivery in commit order for
// one escrow id. No ordering is promised across ids.
func (s *subscribers) notify(change StatusChange) {
	s.mu.RLock()
	cbs := make([]func(StatusChange), 0, len(s.subs))
	for _, cb := range s.subs {
		cbs = append(cbs, cb)
	}
	s.mu.RUnlock()

	for _, cb := range cbs {
		cb(change)
	}
}
