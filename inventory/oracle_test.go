package inventory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const inventoryBody = `{
	"code": 200,
	"msg": "ok",
	"items": [
		{
			"item_id": "asset-1",
			"app_id": "730",
			"class_id": "310777928",
			"instance_id": "302028390",
			"amount": 0
		},
		{
			"item_id": "asset-2",
			"app_id": "730",
			"class_id": "310777928",
			"instance_id": "302028390",
			"amount": 3
		},
		{
			"item_id": "asset-3",
			"app_id": "730",
			"class_id": "104",
			"instance_id": "0",
			"amount": 1
		}
	]
}`

func newTestOracle(t *testing.T, handler http.HandlerFunc) *Oracle {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOracle(srv.URL, "test-key")
}

func TestTypeKeyRoundTrip(t *testing.T) {
	key := TypeKey{AppID: "730", ClassID: "310777928", InstanceID: "302028390"}
	require.Equal(t, "730:310777928:302028390", key.String())

	parsed, err := ParseTypeKey(key.String())
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	for _, s := range []string{"", "730", "730:1", "730:1:2:3"} {
		_, err := ParseTypeKey(s)
		require.Error(t, err, "key %q", s)
	}
}

func TestCountByType(t *testing.T) {
	o := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/inventory", r.URL.Path)
		require.Equal(t, "acc-1", r.URL.Query().Get("account_id"))
		require.Equal(t, "730", r.URL.Query().Get("collection_id"))
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, inventoryBody)
	})

	// A zero amount reads as a single unit; stacks sum.
	n, err := o.CountByType(context.Background(), "acc-1", "730", TypeKey{
		AppID:      "730",
		ClassID:    "310777928",
		InstanceID: "302028390",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)

	n, err = o.CountByType(context.Background(), "acc-1", "730", TypeKey{
		AppID:      "730",
		ClassID:    "999",
		InstanceID: "0",
	})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestHasItem(t *testing.T) {
	o := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, inventoryBody)
	})

	held, err := o.HasItem(context.Background(), "acc-1", "730", "asset-1")
	require.NoError(t, err)
	require.True(t, held)

	held, err = o.HasItem(context.Background(), "acc-1", "730", "asset-9")
	require.NoError(t, err)
	require.False(t, held)
}

func TestItemType(t *testing.T) {
	o := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, inventoryBody)
	})

	key, err := o.ItemType(context.Background(), "acc-1", "730", "asset-3")
	require.NoError(t, err)
	require.Equal(t, TypeKey{AppID: "730", ClassID: "104", InstanceID: "0"}, key)

	// An absent instance is a confirmed miss, not an outage.
	_, err = o.ItemType(context.Background(), "acc-1", "730", "asset-9")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestOracleUnavailable(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "envelope error code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"code": 500, "msg": "backend timeout"}`)
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `not json`)
			},
		},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			o := newTestOracle(t, c.handler)

			_, err := o.CountByType(
				context.Background(),
				"acc-1",
				"730",
				TypeKey{AppID: "730", ClassID: "1", InstanceID: "2"},
			)
			require.ErrorIs(t, err, ErrOracleUnavailable)

			_, err = o.HasItem(context.Background(), "acc-1", "730", "asset-1")
			require.ErrorIs(t, err, ErrOracleUnavailable)
		})
	}
}
