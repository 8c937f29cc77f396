package service

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/gamevault/escrow-core/chain"
	"github.com/gamevault/escrow-core/escrow"
	"github.com/gamevault/escrow-core/inventory"
)

var (
	errSystem              = errors.New("system error")
	errMissingEscrowID     = errors.New("missing escrow id")
	errMissingAccountID    = errors.New("missing account id")
	errMissingCollectionID = errors.New("missing collection id")
	errMissingItemID       = errors.New("missing item id")
	errMissingTypeKey      = errors.New("missing item type key")
	errUnknownStatus       = errors.New("unknown status name")
)

// ErrorCode maps api errors to the http-equivalent code carried in
// the response envelope. Callers retry on 503-class codes only.
var ErrorCode = map[error]int{
	errSystem:                      http.StatusInternalServerError,
	errMissingEscrowID:             http.StatusBadRequest,
	errMissingAccountID:            http.StatusBadRequest,
	errMissingCollectionID:         http.StatusBadRequest,
	errMissingItemID:               http.StatusBadRequest,
	errMissingTypeKey:              http.StatusBadRequest,
	errUnknownStatus:               http.StatusBadRequest,
	escrow.ErrNotFound:             http.StatusNotFound,
	escrow.ErrInvalidState:         http.StatusConflict,
	escrow.ErrMissingBaseline:      http.StatusConflict,
	inventory.ErrOracleUnavailable: http.StatusServiceUnavailable,
	chain.ErrChainUnavailable:      http.StatusServiceUnavailable,
}

// CodeFor resolves the envelope code for an error, unwrapping to
// match the sentinel it was built from.
func CodeFor(err error) int {
	for sentinel, code := range ErrorCode {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCode[errSystem]
}
