package chainio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

// fakeNode answers the handful of JSON-RPC methods the client uses over HTTP.
func fakeNode(t *testing.T, blockNumber *atomic.Uint64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		var result any
		switch req.Method {
		case "eth_chainId":
			result = "0x1"
		case "eth_blockNumber":
			result = fmt.Sprintf("0x%x", blockNumber.Load())
		case "eth_estimateGas":
			result = "0xc350"
		default:
			http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestChainIDIsCached(t *testing.T) {
	var n atomic.Uint64
	srv := fakeNode(t, &n)
	defer srv.Close()

	c, err := NewClient(&RpcOption{RpcURL: srv.URL}, logger.NewNoOpLogger())
	require.NoError(t, err)
	defer c.Close()

	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())

	srv.Close()
	again, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Int64())
}

func TestSubscribeNewBlocksPollsWithoutWebsocket(t *testing.T) {
	var n atomic.Uint64
	n.Store(100)
	srv := fakeNode(t, &n)
	defer srv.Close()

	c, err := NewClient(&RpcOption{RpcURL: srv.URL}, logger.NewNoOpLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	blocks, err := c.SubscribeNewBlocks(ctx)
	require.NoError(t, err)

	select {
	case got := <-blocks:
		assert.Equal(t, uint64(100), got)
	case <-time.After(5 * time.Second):
		t.Fatal("no block received")
	}

	cancel()
	for range blocks {
	}
}

// headService publishes a head every few milliseconds, numbered from base.
type headService struct {
	base uint64
}

func (s *headService) NewHeads(ctx context.Context) (*rpc.Subscription, error) {
	notifier, ok := rpc.NotifierFromContext(ctx)
	if !ok {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()

	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

		n := s.base
		for {
			select {
			case <-ticker.C:
				n++
				header := &types.Header{Number: new(big.Int).SetUint64(n), Difficulty: new(big.Int)}
				if err := notifier.Notify(sub.ID, header); err != nil {
					return
				}
			case <-sub.Err():
				return
			}
		}
	}()

	return sub, nil
}

func newHeadServer(t *testing.T, base uint64) *rpc.Server {
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &headService{base: base}))
	return srv
}

func awaitBlockAtLeast(t *testing.T, blocks <-chan uint64, min uint64) {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n, ok := <-blocks:
			require.True(t, ok, "block stream closed")
			if n >= min {
				return
			}
		case <-deadline:
			t.Fatalf("no block >= %d received", min)
		}
	}
}

func TestConcurrentSubscriptionsSurviveReconnect(t *testing.T) {
	var current atomic.Pointer[rpc.Server]
	current.Store(newHeadServer(t, 100))

	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current.Load().WebsocketHandler([]string{"*"}).ServeHTTP(w, r)
	}))
	defer ws.Close()

	var n atomic.Uint64
	node := fakeNode(t, &n)
	defer node.Close()

	c, err := NewClient(&RpcOption{
		RpcURL:   node.URL,
		WsRpcURL: "ws://" + strings.TrimPrefix(ws.URL, "http://"),
	}, logger.NewNoOpLogger())
	require.NoError(t, err)
	defer c.Close()
	c.reconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := c.SubscribeNewBlocks(ctx)
	require.NoError(t, err)
	second, err := c.SubscribeNewBlocks(ctx)
	require.NoError(t, err)

	awaitBlockAtLeast(t, first, 101)
	awaitBlockAtLeast(t, second, 101)

	// drop every connection, later dials reach the replacement node
	old := current.Swap(newHeadServer(t, 500))
	old.Stop()

	awaitBlockAtLeast(t, first, 501)
	awaitBlockAtLeast(t, second, 501)

	cancel()
	for range first {
	}
	for range second {
	}
	current.Load().Stop()
}
