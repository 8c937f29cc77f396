package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	queryEventsMethod = "queryEvents"
	requestTimeout    = 5 * time.Second

	// jsonrpcInvalidParams is the standard JSON-RPC error code the
	// node returns for an unknown or malformed contract package.
	jsonrpcInvalidParams = -32602
)

var (
	// ErrBadContract signals a misconfigured escrow contract package
	// id. Polling cannot make progress and the process should stop.
	ErrBadContract = errors.New("escrow contract package misconfigured")

	// ErrChainUnavailable signals a transient node query failure. The
	// caller retries on the next poll tick without advancing the
	// cursor.
	ErrChainUnavailable = errors.New("chain node unavailable")
)

var packageIDReg = regexp.MustCompile("^0x[0-9a-fA-F]{1,64}$")

// Client queries escrow lifecycle events from the chain node over
// JSON-RPC, scoped to one contract package.
type Client struct {
	endpoint  string
	packageID string
	http      *http.Client
}

// NewClient returns a client bound to the given node endpoint and
// escrow contract package id.
func NewClient(endpoint, packageID string) (*Client, error) {
	if !packageIDReg.MatchString(packageID) {
		return nil, errors.Wrapf(ErrBadContract, "package id %q", packageID)
	}

	return &Client{
		endpoint:  endpoint,
		packageID: packageID,
		http:      &http.Client{},
	}, nil
}

// eventFilter selects events of one kind emitted by the escrow module
// of the configured package.
type eventFilter struct {
	MoveEventType string `json:"MoveEventType"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type eventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

type eventEnvelope struct {
	ID         eventID         `json:"id"`
	Checkpoint string          `json:"checkpoint"`
	Type       string          `json:"type"`
	ParsedJSON json.RawMessage `json:"parsedJson"`
}

type queryEventsResult struct {
	Data       []*eventEnvelope `json:"data"`
	NextCursor *eventID         `json:"nextCursor"`
	HasNext    bool             `json:"hasNextPage"`
}

// QueryEvents returns one page of events of the given kind after the
// given cursor, newest first as the node emits them, plus the cursor
// for the next page. A nil since cursor reads from the beginning. Re-
// delivery of already seen events is possible; callers must apply
// idempotently.
func (c *Client) QueryEvents(
	ctx context.Context,
	kind EventKind,
	since *Cursor,
	limit int,
) ([]*RawEvent, *Cursor, error) {
	var cursorParam interface{}
	if since != nil && !since.IsZero() {
		cursorParam = &eventID{
			TxDigest: since.TxDigest,
			EventSeq: strconv.FormatUint(since.EventSeq, 10),
		}
	}

	result := &queryEventsResult{}
	if err := c.call(ctx, queryEventsMethod, []interface{}{
		&eventFilter{
			MoveEventType: fmt.Sprintf("%s::escrow::%s", c.packageID, kind),
		},
		cursorParam,
		limit,
		true, /* descending order */
	}, result); err != nil {
		return nil, nil, err
	}

	events := make([]*RawEvent, 0, len(result.Data))
	for _, env := range result.Data {
		ev, err := decodeEnvelope(env, kind)
		if err != nil {
			return nil, nil, errors.Wrap(ErrChainUnavailable, err.Error())
		}

		events = append(events, ev)
	}

	next := since
	if result.NextCursor != nil {
		seq, err := strconv.ParseUint(result.NextCursor.EventSeq, 10, 64)
		if err != nil {
			return nil, nil, errors.Wrap(ErrChainUnavailable, err.Error())
		}

		next = &Cursor{
			TxDigest: result.NextCursor.TxDigest,
			EventSeq: seq,
		}
	}

	return events, next, nil
}

func decodeEnvelope(env *eventEnvelope, kind EventKind) (*RawEvent, error) {
	seq, err := strconv.ParseUint(env.ID.EventSeq, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse event seq")
	}

	checkpoint := uint64(0)
	if env.Checkpoint != "" {
		checkpoint, err = strconv.ParseUint(env.Checkpoint, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parse event checkpoint")
		}
	}

	return &RawEvent{
		TxDigest:   env.ID.TxDigest,
		EventSeq:   seq,
		Checkpoint: checkpoint,
		Kind:       kind,
		Payload:    env.ParsedJSON,
	}, nil
}

func (c *Client) call(
	ctx context.Context,
	method string,
	params []interface{},
	result interface{},
) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(ErrChainUnavailable, err.Error())
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.endpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return errors.Wrap(ErrChainUnavailable, err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(ErrChainUnavailable, err.Error())
	}

	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(ErrChainUnavailable, err.Error())
	}

	rr := &rpcResponse{}
	if err := json.Unmarshal(raw, rr); err != nil {
		return errors.Wrap(ErrChainUnavailable, err.Error())
	}

	if rr.Error != nil {
		if rr.Error.Code == jsonrpcInvalidParams {
			return errors.Wrap(ErrBadContract, rr.Error.Message)
		}

		return errors.Wrap(ErrChainUnavailable, rr.Error.Message)
	}

	if err := json.Unmarshal(rr.Result, result); err != nil {
		return errors.Wrap(ErrChainUnavailable, err.Error())
	}

	return nil
}
