package service

import (
	"github.com/gin-gonic/gin"

	"github.com/gamevault/escrow-core/inventory"
)

type hasItemResp struct {
	AccountID string `json:"account_id"`
	ItemID    string `json:"item_id"`
	Held      bool   `json:"held"`
}

// HasItem handles the /inventory/has request, reporting whether the
// account currently holds the specific item instance.
func (s *Service) HasItem(c *gin.Context) (*hasItemResp, error) {
	account := c.Query("account")
	if account == "" {
		return nil, errMissingAccountID
	}

	collection := c.Query("collection_id")
	if collection == "" {
		return nil, errMissingCollectionID
	}

	itemID := c.Query("item_id")
	if itemID == "" {
		return nil, errMissingItemID
	}

	held, err := s.oracle.HasItem(c.Request.Context(), account, collection, itemID)
	if err != nil {
		return nil, err
	}

	return &hasItemResp{
		AccountID: account,
		ItemID:    itemID,
		Held:      held,
	}, nil
}

type itemCountResp struct {
	AccountID   string `json:"account_id"`
	ItemTypeKey string `json:"item_type_key"`
	Count       uint64 `json:"count"`
}

// ItemCount handles the /inventory/count request, reporting how many
// units of the item type the account currently holds.
func (s *Service) ItemCount(c *gin.Context) (*itemCountResp, error) {
	account := c.Query("account")
	if account == "" {
		return nil, errMissingAccountID
	}

	collection := c.Query("collection_id")
	if collection == "" {
		return nil, errMissingCollectionID
	}

	rawKey := c.Query("type_key")
	if rawKey == "" {
		return nil, errMissingTypeKey
	}

	key, err := inventory.ParseTypeKey(rawKey)
	if err != nil {
		return nil, errMissingTypeKey
	}

	count, err := s.oracle.CountByType(c.Request.Context(), account, collection, key)
	if err != nil {
		return nil, err
	}

	return &itemCountResp{
		AccountID:   account,
		ItemTypeKey: rawKey,
		Count:       count,
	}, nil
}
