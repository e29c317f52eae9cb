package api

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/chain"
	"github.com/gochain/radcoin/pkg/difficulty"
	"github.com/gochain/radcoin/pkg/peer"
	"github.com/gochain/radcoin/pkg/storage/memstore"
)

func mine(t *testing.T, b block.Block) block.HashedBlock {
	t.Helper()
	for nonce := uint64(0); ; nonce++ {
		var entropy [8]byte
		binary.BigEndian.PutUint64(entropy[:], nonce)
		b.MiningEntropy = entropy[:]
		h, err := b.MiningHash()
		require.NoError(t, err)
		if block.MeetsDifficulty(h, b.Difficulty) {
			hash, err := b.Hash()
			require.NoError(t, err)
			return block.HashedBlock{Block: b, Hash: hash}
		}
	}
}

func rewardTx(addr primitives.Address) block.SignedTransaction {
	return block.SignedTransaction{
		Transaction: block.Transaction{Outputs: []block.TransactionOutput{{Address: addr, Amount: block.RewardAmount}}},
	}
}

func nextBlock(t *testing.T, parent block.HashedBlock, minerAddr primitives.Address, extra ...block.SignedTransaction) block.HashedBlock {
	t.Helper()
	txs := append([]block.SignedTransaction{rewardTx(minerAddr)}, extra...)
	b := block.Block{
		ParentHash:   parent.Hash,
		BlockNum:     parent.Block.BlockNum + 1,
		Difficulty:   difficulty.DefaultDifficulty,
		Timestamp:    parent.Block.Timestamp + 1,
		Transactions: txs,
	}
	return mine(t, b)
}

func newTestServer(t *testing.T) (*Server, *chain.Engine, *peer.List) {
	t.Helper()
	store := memstore.New()
	engine := chain.NewEngine(store)
	peers := peer.New(store, "127.0.0.1:7777")
	return New(engine, peers, "self-peer-id", "127.0.0.1:0"), engine, peers
}

func TestRootRoute(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetChainBeforeGenesisReturnsServiceUnavailable(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chain", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostBlockThenGetByHashAndChain(t *testing.T) {
	s, _, _ := newTestServer(t)

	gen := block.Genesis()

	body, err := json.Marshal(gen)
	require.NoError(t, err)

	postRec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(postRec, httptest.NewRequest(http.MethodPost, "/block", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, postRec.Code)

	getRec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/block?hex_hash="+gen.Hash.Hex(), nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	var got block.HashedBlock
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Equal(t, gen.Hash, got.Hash)

	chainRec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(chainRec, httptest.NewRequest(http.MethodGet, "/chain", nil))
	require.Equal(t, http.StatusOK, chainRec.Code)
	var cr chainResponse
	require.NoError(t, json.Unmarshal(chainRec.Body.Bytes(), &cr))
	assert.Equal(t, uint64(0), cr.Height)
	assert.Equal(t, gen.Hash, cr.HeadHash)
}

func TestPostBlockWithBadHashIsRejected(t *testing.T) {
	s, _, _ := newTestServer(t)

	gen := block.Genesis()
	gen.Hash = primitives.HashBytes([]byte("not it"))

	body, err := json.Marshal(gen)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/block", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBlockNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/block?hex_hash="+primitives.HashBytes([]byte("x")).Hex(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBlockRequiresAQueryParam(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/block", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAndGetTransaction(t *testing.T) {
	s, engine, _ := newTestServer(t)
	miner, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	gen := block.Genesis()
	require.NoError(t, engine.AddBlock(gen))
	trunk1 := nextBlock(t, gen, miner.Address())
	require.NoError(t, engine.AddBlock(trunk1))
	rewardTxHash, err := trunk1.Block.Transactions[0].Transaction.Hash()
	require.NoError(t, err)

	tx := block.Transaction{
		Inputs:  []block.TransactionInput{{TransactionHash: rewardTxHash, OutputIndex: 0}},
		Outputs: []block.TransactionOutput{{Address: recipient.Address(), Amount: block.RewardAmount}},
	}
	h, err := tx.Hash()
	require.NoError(t, err)
	signed := block.SignedTransaction{Transaction: tx, Signer: miner.Address(), Signature: miner.Sign(h.Bytes())}

	body, err := json.Marshal(signed)
	require.NoError(t, err)

	postRec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(postRec, httptest.NewRequest(http.MethodPost, "/transaction", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, postRec.Code)

	getRec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/transaction", nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	var txResp map[string][]block.SignedTransaction
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &txResp))
	require.Len(t, txResp["transactions"], 1)
}

func TestPostAndGetPeer(t *testing.T) {
	s, _, peers := newTestServer(t)

	body, err := json.Marshal(postPeerRequest{Peers: []peer.Peer{{Address: "10.0.0.1:7777", PeerID: "abc"}}})
	require.NoError(t, err)

	postRec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(postRec, httptest.NewRequest(http.MethodPost, "/peer", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, postRec.Code)

	getRec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/peer", nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	var got struct {
		Peers  []peer.Peer `json:"peers"`
		PeerID string      `json:"peer_id"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	require.Len(t, got.Peers, 1)
	assert.Equal(t, "10.0.0.1:7777", got.Peers[0].Address)
	assert.Equal(t, "self-peer-id", got.PeerID)

	active, err := peers.AllActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestPostPeerSkipsSelf(t *testing.T) {
	s, _, peers := newTestServer(t)
	body, err := json.Marshal(postPeerRequest{Peers: []peer.Peer{{Address: "10.0.0.2:7777", PeerID: "self-peer-id"}}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/peer", bytes.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	active, err := peers.AllActive()
	require.NoError(t, err)
	assert.Empty(t, active)
}
