package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	inventoryPath  = "inventory"
	requestTimeout = 5 * time.Second
)

var (
	// ErrOracleUnavailable signals a transport, auth or timeout
	// failure talking to the inventory service. It is retryable and
	// must never be read as "item absent" or "count zero".
	ErrOracleUnavailable = errors.New("inventory oracle unavailable")

	// ErrItemNotFound is the confirmed-absent answer for an item
	// instance lookup, distinct from the oracle being unreachable.
	ErrItemNotFound = errors.New("item not present in account inventory")
)

// TypeKey groups fungible-equivalent items. Instance ids are
// reassigned by the inventory system on transfer, so cross-account
// comparison only makes sense at the type level.
type TypeKey struct {
	AppID      string
	ClassID    string
	InstanceID string
}

// String returns the canonical composite form persisted on escrow
// records.
func (k TypeKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.AppID, k.ClassID, k.InstanceID)
}

// ParseTypeKey parses the canonical app:class:instance composite form.
func ParseTypeKey(s string) (TypeKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return TypeKey{}, errors.Errorf("malformed item type key %q", s)
	}

	return TypeKey{
		AppID:      parts[0],
		ClassID:    parts[1],
		InstanceID: parts[2],
	}, nil
}

// Oracle queries the third-party inventory service for item holdings.
// Calls are pure reads, uncached, and authoritative for "now" only.
type Oracle struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewOracle returns an oracle client for the given service endpoint.
func NewOracle(endpoint, apiKey string) *Oracle {
	return &Oracle{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{},
	}
}

type inventoryItem struct {
	ItemID     string `json:"item_id"`
	AppID      string `json:"app_id"`
	ClassID    string `json:"class_id"`
	InstanceID string `json:"instance_id"`
	Amount     uint64 `json:"amount"`
}

type inventoryResp struct {
	Code  int              `json:"code"`
	Msg   string           `json:"msg"`
	Items []*inventoryItem `json:"items"`
}

// HasItem reports whether the account currently holds the specific
// item instance within the collection.
func (o *Oracle) HasItem(
	ctx context.Context,
	accountID string,
	collectionID string,
	itemInstanceID string,
) (bool, error) {
	items, err := o.fetch(ctx, accountID, collectionID)
	if err != nil {
		return false, err
	}

	for _, it := range items {
		if it.ItemID == itemInstanceID {
			return true, nil
		}
	}

	return false, nil
}

// CountByType returns how many units grouped under the type key the
// account currently holds within the collection.
func (o *Oracle) CountByType(
	ctx context.Context,
	accountID string,
	collectionID string,
	key TypeKey,
) (uint64, error) {
	items, err := o.fetch(ctx, accountID, collectionID)
	if err != nil {
		return 0, err
	}

	count := uint64(0)
	for _, it := range items {
		if it.AppID != key.AppID ||
			it.ClassID != key.ClassID ||
			it.InstanceID != key.InstanceID {
			continue
		}

		amount := it.Amount
		if amount == 0 {
			amount = 1
		}

		count += amount
	}

	return count, nil
}

// ItemType resolves the type-key grouping of a specific item instance
// currently held by the account.
func (o *Oracle) ItemType(
	ctx context.Context,
	accountID string,
	collectionID string,
	itemInstanceID string,
) (TypeKey, error) {
	items, err := o.fetch(ctx, accountID, collectionID)
	if err != nil {
		return TypeKey{}, err
	}

	for _, it := range items {
		if it.ItemID == itemInstanceID {
			return TypeKey{
				AppID:      it.AppID,
				ClassID:    it.ClassID,
				InstanceID: it.InstanceID,
			}, nil
		}
	}

	return TypeKey{}, errors.Wrapf(
		ErrItemNotFound,
		"item %s for account %s",
		itemInstanceID,
		accountID,
	)
}

func (o *Oracle) fetch(
	ctx context.Context,
	accountID string,
	collectionID string,
) ([]*inventoryItem, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := fmt.Sprintf(
		"%s/%s?account_id=%s&collection_id=%s",
		o.endpoint,
		inventoryPath,
		accountID,
		collectionID,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(ErrOracleUnavailable, err.Error())
	}

	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrOracleUnavailable, err.Error())
	}

	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(
			ErrOracleUnavailable,
			"inventory service status %d",
			resp.StatusCode,
		)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrOracleUnavailable, err.Error())
	}

	ir := &inventoryResp{}
	if err := json.Unmarshal(raw, ir); err != nil {
		return nil, errors.Wrap(ErrOracleUnavailable, err.Error())
	}

	if ir.Code != http.StatusOK {
		return nil, errors.Wrapf(
			ErrOracleUnavailable,
			"inventory service error: %s",
			ir.Msg,
		)
	}

	return ir.Items, nil
}
