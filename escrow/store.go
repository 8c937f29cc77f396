package escrow

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/gamevault/escrow-core/chain"
	"github.com/gamevault/escrow-core/database/orm"
)

// Store is the durable keyed record of escrow state. It is the single
// source of truth and the only component permitted to mutate records;
// every status change goes through the guarded UpdateStatus so
// concurrent reconciliation passes cannot lose updates.
type Store struct {
	db *gorm.DB
}

// NewStore returns a store backed by the given database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InsertIfAbsent creates the record unless a record with the same
// escrow id already exists. Returns whether a row was created. A
// duplicate observation of the same id is a no-op, not an error.
func (s *Store) InsertIfAbsent(rec *orm.Escrow) (bool, error) {
	res := s.db.
		Where("escrow_id = ?", rec.EscrowID).
		FirstOrCreate(rec)
	if res.Error != nil {
		// Two overlapping polls can race FirstOrCreate into a unique
		// key violation. The row exists either way.
		if err := s.db.Model(&orm.Escrow{}).
			Where("escrow_id = ?", rec.EscrowID).
			First(rec).
			Error; err == nil {
			return false, nil
		}

		return false, errors.Wrap(res.Error, "insert escrow record")
	}

	return res.RowsAffected == 1, nil
}

// UpdateStatus moves the record to newStatus in a single atomic
// read-modify-write, guarded on the set of statuses the transition is
// valid from. Returns whether the transition applied; false means the
// record is absent or its status is incompatible.
func (s *Store) UpdateStatus(
	escrowID string,
	from []orm.Status,
	to orm.Status,
	txDigest string,
) (bool, error) {
	updates := map[string]interface{}{
		"status": to,
	}
	if txDigest != "" {
		updates["chain_tx_digest"] = txDigest
	}

	res := s.db.Model(&orm.Escrow{}).
		Where("escrow_id = ? AND status IN ?", escrowID, from).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "update escrow status")
	}

	return res.RowsAffected == 1, nil
}

// Get returns the record for the given escrow id.
func (s *Store) Get(escrowID string) (*orm.Escrow, error) {
	rec := &orm.Escrow{}
	if err := s.db.Model(&orm.Escrow{}).
		Where("escrow_id = ?", escrowID).
		First(rec).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return rec, nil
}

// ListByParticipant returns every record the account takes part in,
// as buyer or seller, newest first.
func (s *Store) ListByParticipant(accountID string) ([]*orm.Escrow, error) {
	recs := make([]*orm.Escrow, 0)
	return recs, s.db.Model(&orm.Escrow{}).
		Where("buyer_address = ? OR seller_address = ?", accountID, accountID).
		Order("id desc").
		Find(&recs).
		Error
}

// ListByStatus returns every record currently in the given status,
// newest first.
func (s *Store) ListByStatus(status orm.Status) ([]*orm.Escrow, error) {
	recs := make([]*orm.Escrow, 0)
	return recs, s.db.Model(&orm.Escrow{}).
		Where("status = ?", status).
		Order("id desc").
		Find(&recs).
		Error
}

// ListPage returns one page of records filtered by participant and
// optionally by status, newest first, plus the unpaged total.
func (s *Store) ListPage(
	accountID string,
	status *orm.Status,
	offset int,
	limit int,
) ([]*orm.Escrow, int64, error) {
	query := s.db.Model(&orm.Escrow{}).
		Where("buyer_address = ? OR seller_address = ?", accountID, accountID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	total := int64(0)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	recs := make([]*orm.Escrow, 0)
	if err := query.
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&recs).
		Error; err != nil {
		return nil, 0, err
	}

	return recs, total, nil
}

// CountByStatus returns the record count per lifecycle status.
func (s *Store) CountByStatus() (map[orm.Status]int64, error) {
	rows := make([]*struct {
		Status orm.Status
		Total  int64
	}, 0)
	if err := s.db.Model(&orm.Escrow{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	counts := make(map[orm.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}

	return counts, nil
}

// SetBaseline is the administrative baseline correction for records
// flagged with a missing baseline. It rewrites the type key and the
// initial counts and clears the flag. Only non-terminal flagged
// records are correctable.
func (s *Store) SetBaseline(
	escrowID string,
	itemTypeKey string,
	sellerCount uint64,
	buyerCount uint64,
) error {
	res := s.db.Model(&orm.Escrow{}).
		Where(
			"escrow_id = ? AND baseline_missing = ? AND status IN ?",
			escrowID,
			true,
			[]orm.Status{orm.StatusInitialized, orm.StatusDeposited},
		).
		Updates(map[string]interface{}{
			"item_type_key":             itemTypeKey,
			"initial_seller_item_count": sellerCount,
			"initial_buyer_item_count":  buyerCount,
			"baseline_missing":          false,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "correct escrow baseline")
	}

	if res.RowsAffected == 0 {
		if _, err := s.Get(escrowID); err != nil {
			return err
		}

		return ErrInvalidState
	}

	return nil
}

// LinkInventory attaches the inventory-service account ids for buyer
// and seller once the external linking flow resolves them.
func (s *Store) LinkInventory(
	escrowID string,
	buyerInventoryID string,
	sellerInventoryID string,
) error {
	updates := map[string]interface{}{}
	if buyerInventoryID != "" {
		updates["buyer_inventory_id"] = buyerInventoryID
	}
	if sellerInventoryID != "" {
		updates["seller_inventory_id"] = sellerInventoryID
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.Model(&orm.Escrow{}).
		Where("escrow_id = ?", escrowID).
		Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "link inventory accounts")
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Cursor returns the persisted poll position for the event kind, or
// nil when the kind has never been polled.
func (s *Store) Cursor(kind chain.EventKind) (*chain.Cursor, error) {
	ec := &orm.EventCursor{}
	if err := s.db.Model(&orm.EventCursor{}).
		Where("kind = ?", string(kind)).
		First(ec).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return &chain.Cursor{
		TxDigest: ec.TxDigest,
		EventSeq: ec.EventSeq,
	}, nil
}

// SaveCursor persists the poll position for the event kind. The
// reconciler only calls this after the event at that position took
// effect, so a crash never skips events.
func (s *Store) SaveCursor(kind chain.EventKind, c *chain.Cursor) error {
	res := s.db.Model(&orm.EventCursor{}).
		Where("kind = ?", string(kind)).
		Updates(map[string]interface{}{
			"tx_digest": c.TxDigest,
			"event_seq": c.EventSeq,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "save event cursor")
	}

	if res.RowsAffected == 0 {
		if err := s.db.Create(&orm.EventCursor{
			Kind:     string(kind),
			TxDigest: c.TxDigest,
			EventSeq: c.EventSeq,
		}).Error; err != nil {
			return errors.Wrap(err, "create event cursor")
		}
	}

	return nil
}
