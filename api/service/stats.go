package service

import (
	"time"

	"github.com/docker/go-units"
	"github.com/gin-gonic/gin"

	"github.com/gamevault/escrow-core/database/orm"
)

type pollStatus struct {
	Kind     string `json:"kind"`
	TxDigest string `json:"tx_digest"`
	Lag      string `json:"lag"`
}

type statsResp struct {
	TotalEscrows     int64         `json:"total_escrows"`
	InitializedCount int64         `json:"initialized_count"`
	DepositedCount   int64         `json:"deposited_count"`
	CompletedCount   int64         `json:"completed_count"`
	CancelledCount   int64         `json:"cancelled_count"`
	EscrowedValue    string        `json:"escrowed_value"`
	Pollers          []*pollStatus `json:"pollers"`
}

// Stats handles the /stats request.
func (s *Service) Stats(_ *gin.Context) (*statsResp, error) {
	counts, err := s.store.CountByStatus()
	if err != nil {
		return nil, err
	}

	total := int64(0)
	for _, c := range counts {
		total += c
	}

	// Value currently locked in escrow: deposits not yet claimed or
	// refunded.
	result := new(struct{ Locked uint64 })
	if err := s.db.Model(&orm.Escrow{}).
		Select("coalesce(sum(price_base), 0) as locked").
		Where("status = ?", orm.StatusDeposited).
		Scan(result).
		Error; err != nil {
		return nil, err
	}

	cursors := make([]*orm.EventCursor, 0)
	if err := s.db.Model(&orm.EventCursor{}).
		Find(&cursors).
		Error; err != nil {
		return nil, err
	}

	pollers := make([]*pollStatus, len(cursors))
	for i, cur := range cursors {
		pollers[i] = &pollStatus{
			Kind:     cur.Kind,
			TxDigest: cur.TxDigest,
			Lag:      units.HumanDuration(time.Since(cur.UpdatedAt)),
		}
	}

	return &statsResp{
		TotalEscrows:     total,
		InitializedCount: counts[orm.StatusInitialized],
		DepositedCount:   counts[orm.StatusDeposited],
		CompletedCount:   counts[orm.StatusCompleted],
		CancelledCount:   counts[orm.StatusCancelled],
		EscrowedValue:    displayAmount(result.Locked),
		Pollers:          pollers,
	}, nil
}
