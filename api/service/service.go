package service

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gamevault/escrow-core/escrow"
)

// baseUnitsPerCoin is the smallest-unit denomination of the chain
// currency. Internal storage stays integer; conversion to the display
// denomination happens only here, on outward reads.
const baseUnitsPerCoin = 1_000_000_000

// Service defines an instance of service that handles third-party
// requests against the escrow core.
type Service struct {
	db       *gorm.DB
	store    *escrow.Store
	verifier *escrow.Verifier
	oracle   escrow.Oracle
}

// New creates a new service instance.
func New(db *gorm.DB, oracle escrow.Oracle) *Service {
	store := escrow.NewStore(db)
	return &Service{
		db:       db,
		store:    store,
		verifier: escrow.NewVerifier(store, oracle),
		oracle:   oracle,
	}
}

type pingResp struct {
	Pong string `json:"pong"`
}

func (s *Service) Ping(_ *gin.Context) (*pingResp, error) {
	return &pingResp{Pong: "pong"}, nil
}

// displayAmount renders base units as a two-decimal coin amount using
// integer math only; float conversion would drop precision for
// balances beyond 2^53 base units.
func displayAmount(base uint64) string {
	whole := base / baseUnitsPerCoin
	cents := (base%baseUnitsPerCoin*100 + baseUnitsPerCoin/2) / baseUnitsPerCoin
	if cents == 100 {
		whole++
		cents = 0
	}

	return fmt.Sprintf("%d.%02d", whole, cents)
}
