package service

import (
	"github.com/gin-gonic/gin"

	"github.com/gamevault/escrow-core/api/pagination"
	"github.com/gamevault/escrow-core/database/orm"
	"github.com/gamevault/escrow-core/escrow"
)

type escrowResp struct {
	EscrowID          string `json:"escrow_id"`
	BuyerAddress      string `json:"buyer_address"`
	SellerAddress     string `json:"seller_address"`
	BuyerInventoryID  string `json:"buyer_inventory_id,omitempty"`
	SellerInventoryID string `json:"seller_inventory_id,omitempty"`
	AssetID           string `json:"asset_id"`
	AssetName         string `json:"asset_name"`
	CollectionID      string `json:"collection_id"`
	AssetAmount       uint64 `json:"asset_amount"`
	ItemTypeKey       string `json:"item_type_key,omitempty"`
	TradeReference    string `json:"trade_reference"`
	Price             string `json:"price"`
	BaselineMissing   bool   `json:"baseline_missing"`
	Status            string `json:"status"`
	ChainTxDigest     string `json:"chain_tx_digest,omitempty"`
	BlobReference     string `json:"blob_reference,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

func newEscrowResp(rec *orm.Escrow) *escrowResp {
	return &escrowResp{
		EscrowID:          rec.EscrowID,
		BuyerAddress:      rec.BuyerAddress,
		SellerAddress:     rec.SellerAddress,
		BuyerInventoryID:  rec.BuyerInventoryID,
		SellerInventoryID: rec.SellerInventoryID,
		AssetID:           rec.AssetID,
		AssetName:         rec.AssetName,
		CollectionID:      rec.CollectionID,
		AssetAmount:       rec.AssetAmount,
		ItemTypeKey:       rec.ItemTypeKey,
		TradeReference:    rec.TradeReference,
		Price:             displayAmount(rec.PriceBase),
		BaselineMissing:   rec.BaselineMissing,
		Status:            rec.Status.String(),
		ChainTxDigest:     rec.ChainTxDigest,
		BlobReference:     rec.BlobReference,
		CreatedAt:         rec.CreatedAt.Unix(),
		UpdatedAt:         rec.UpdatedAt.Unix(),
	}
}

// Escrow handles the /escrow request.
func (s *Service) Escrow(c *gin.Context) (*escrowResp, error) {
	id := c.Query("escrow_id")
	if id == "" {
		return nil, errMissingEscrowID
	}

	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	return newEscrowResp(rec), nil
}

// Escrows handles the /escrows request, listing every escrow an
// account takes part in, optionally narrowed to one status.
func (s *Service) Escrows(
	c *gin.Context,
	page *pagination.Query,
) (*pagination.Result, error) {
	account := c.Query("account")
	if account == "" {
		return nil, errMissingAccountID
	}

	var status *orm.Status
	if name := c.Query("status"); name != "" {
		st, ok := orm.StatusFromName(name)
		if !ok {
			return nil, errUnknownStatus
		}

		status = &st
	}

	recs, total, err := s.store.ListPage(account, status, page.Start, page.Limit)
	if err != nil {
		return nil, err
	}

	resps := make([]*escrowResp, len(recs))
	for i, rec := range recs {
		resps[i] = newEscrowResp(rec)
	}

	return &pagination.Result{
		Data:  resps,
		Total: total,
	}, nil
}

// VerifyTransfer handles the /verify request. The result reflects the
// oracle's counts at this instant only.
func (s *Service) VerifyTransfer(c *gin.Context) (*escrow.VerificationResult, error) {
	id := c.Query("escrow_id")
	if id == "" {
		return nil, errMissingEscrowID
	}

	return s.verifier.Verify(c.Request.Context(), id)
}

type baselineReq struct {
	EscrowID    string `json:"escrow_id" binding:"required"`
	ItemTypeKey string `json:"item_type_key" binding:"required"`
	SellerCount uint64 `json:"seller_count"`
	BuyerCount  uint64 `json:"buyer_count"`
}

// CorrectBaseline handles the /baseline request, the administrative
// correction path for records whose baseline capture degraded.
func (s *Service) CorrectBaseline(c *gin.Context) error {
	req := &baselineReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		if req.EscrowID == "" {
			return errMissingEscrowID
		}

		return errMissingTypeKey
	}

	return s.store.SetBaseline(
		req.EscrowID,
		req.ItemTypeKey,
		req.SellerCount,
		req.BuyerCount,
	)
}
