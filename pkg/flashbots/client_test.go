package flashbots

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio/signer"
	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

var chainID = big.NewInt(1)

func mustIdentity(t *testing.T) *signer.Identity {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer.FromPrivateKey(key)
}

func signedTxs(t *testing.T, ids ...*signer.Identity) []*types.Transaction {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	txs := make([]*types.Transaction, 0, len(ids))
	for i, id := range ids {
		tx, err := id.SignTx(&types.LegacyTx{
			Nonce:    uint64(i),
			GasPrice: big.NewInt(1_000_000_000),
			Gas:      21000,
			To:       &to,
			Value:    big.NewInt(1),
		}, chainID)
		require.NoError(t, err)
		txs = append(txs, tx)
	}
	return txs
}

type capturedRequest struct {
	Method    string
	Params    []json.RawMessage
	Signature string
	Body      []byte
}

func relayServer(t *testing.T, result string, captured *[]capturedRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		_ = json.Unmarshal(body, &req)
		*captured = append(*captured, capturedRequest{
			Method:    req.Method,
			Params:    req.Params,
			Signature: r.Header.Get("X-Flashbots-Signature"),
			Body:      body,
		})

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
}

func TestCallBundleSendsSignedRequest(t *testing.T) {
	var captured []capturedRequest
	srv := relayServer(t, `{
		"bundleHash":"0x0000000000000000000000000000000000000000000000000000000000000001",
		"coinbaseDiff":"2100000000000000",
		"totalGasUsed":42000,
		"stateBlockNumber":99,
		"results":[{"txHash":"0x0000000000000000000000000000000000000000000000000000000000000002","gasUsed":21000,"coinbaseDiff":"1"}]
	}`, &captured)
	defer srv.Close()

	auth := mustIdentity(t)
	client := NewClient(srv.URL, auth, nil, logger.NewNoOpLogger())

	txs := signedTxs(t, mustIdentity(t), mustIdentity(t))
	sim, err := client.CallBundle(context.Background(), txs, 100, "latest")
	require.NoError(t, err)

	require.Len(t, captured, 1)
	req := captured[0]
	assert.Equal(t, "eth_callBundle", req.Method)

	var args callBundleArgs
	require.NoError(t, json.Unmarshal(req.Params[0], &args))
	assert.Equal(t, hexutil.Uint64(100), args.BlockNumber)
	assert.Equal(t, "latest", args.StateBlockNumber)
	require.Len(t, args.Txs, 2)
	raw0, _ := txs[0].MarshalBinary()
	assert.Equal(t, hexutil.Bytes(raw0), args.Txs[0])

	// header is address:eip191(keccak(body).Hex())
	parts := strings.Split(req.Signature, ":")
	require.Len(t, parts, 2)
	assert.Equal(t, auth.Address.Hex(), parts[0])
	sig := common.FromHex(parts[1])
	require.Len(t, sig, 65)
	sig[64] -= 27
	digest := crypto.Keccak256Hash(req.Body).Hex()
	msgHash := crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n" + "66" + digest))
	pub, err := crypto.SigToPub(msgHash.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, auth.Address, crypto.PubkeyToAddress(*pub))

	assert.Equal(t, uint64(42000), sim.TotalGasUsed)
	assert.Equal(t, "50000000000", sim.EffectiveGasPrice().String())
	idx, rev := sim.FirstRevert()
	assert.Equal(t, -1, idx)
	assert.Nil(t, rev)
}

func TestCallBundleSurfacesRelayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, mustIdentity(t), nil, logger.NewNoOpLogger())
	_, err := client.CallBundle(context.Background(), signedTxs(t, mustIdentity(t)), 1, "latest")
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestCallBundleHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, mustIdentity(t), nil, logger.NewNoOpLogger())
	_, err := client.CallBundle(context.Background(), signedTxs(t, mustIdentity(t)), 1, "latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestEncodeTransactionsRejectsEmptyBundle(t *testing.T) {
	_, err := EncodeTransactions(nil)
	assert.ErrorIs(t, err, ErrEmptyBundle)
}

func TestSendBundleTargetsBlock(t *testing.T) {
	var captured []capturedRequest
	srv := relayServer(t, `{"bundleHash":"0x00000000000000000000000000000000000000000000000000000000000000ff"}`, &captured)
	defer srv.Close()

	client := NewClient(srv.URL, mustIdentity(t), nil, logger.NewNoOpLogger())
	sub, err := client.SendBundle(context.Background(), signedTxs(t, mustIdentity(t)), 1234)
	require.NoError(t, err)

	require.Len(t, captured, 1)
	assert.Equal(t, "eth_sendBundle", captured[0].Method)
	var args sendBundleArgs
	require.NoError(t, json.Unmarshal(captured[0].Params[0], &args))
	assert.Equal(t, hexutil.Uint64(1234), args.BlockNumber)

	assert.Equal(t, uint64(1234), sub.TargetBlock())
	assert.Equal(t, common.HexToHash("0xff"), sub.BundleHash())
}

func TestSendBundleFallsBackToLocalHash(t *testing.T) {
	var captured []capturedRequest
	srv := relayServer(t, `{}`, &captured)
	defer srv.Close()

	txs := signedTxs(t, mustIdentity(t), mustIdentity(t))
	client := NewClient(srv.URL, mustIdentity(t), nil, logger.NewNoOpLogger())
	sub, err := client.SendBundle(context.Background(), txs, 10)
	require.NoError(t, err)
	assert.Equal(t, BundleHash(txs), sub.BundleHash())
}

func TestSimulationResultFirstRevert(t *testing.T) {
	sim := &SimulationResult{Results: []CallResult{{}, {}, {Revert: "execution reverted"}}}

	idx, rev := sim.FirstRevert()
	assert.Equal(t, 2, idx)
	require.NotNil(t, rev)
	assert.Equal(t, "execution reverted", rev.Reason())

	assert.Equal(t, "0", sim.EffectiveGasPrice().String())
}
