package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/storage"
)

func TestPutGetBlockByHash(t *testing.T) {
	s := New()
	b := block.Block{BlockNum: 1}
	h, err := b.Hash()
	require.NoError(t, err)

	require.NoError(t, s.PutBlock(storage.BlockRecord{Block: b, Hash: h}))
	got, err := s.GetBlockByHash(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Block.BlockNum)
}

func TestGetBlockByHashNotFound(t *testing.T) {
	s := New()
	_, err := s.GetBlockByHash(primitives.HashBytes([]byte("missing")))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlocksIndexedByNumAndParent(t *testing.T) {
	s := New()
	parent := primitives.HashBytes([]byte("parent"))
	b1 := block.Block{BlockNum: 5, ParentHash: parent, Timestamp: 1}
	b2 := block.Block{BlockNum: 5, ParentHash: parent, Timestamp: 2}
	h1, _ := b1.Hash()
	h2, _ := b2.Hash()
	require.NoError(t, s.PutBlock(storage.BlockRecord{Block: b1, Hash: h1}))
	require.NoError(t, s.PutBlock(storage.BlockRecord{Block: b2, Hash: h2}))

	byNum, err := s.GetBlocksByNum(5)
	require.NoError(t, err)
	assert.Len(t, byNum, 2)

	byParent, err := s.GetBlocksByParentHash(parent)
	require.NoError(t, err)
	assert.Len(t, byParent, 2)
}

func TestMarkAbandoned(t *testing.T) {
	s := New()
	b := block.Block{BlockNum: 1}
	h, _ := b.Hash()
	require.NoError(t, s.PutBlock(storage.BlockRecord{Block: b, Hash: h}))
	require.NoError(t, s.MarkAbandoned(h))

	got, err := s.GetBlockByHash(h)
	require.NoError(t, err)
	assert.True(t, got.Abandoned)
}

func TestTransactionPutDeleteGet(t *testing.T) {
	s := New()
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	tx := block.SignedTransaction{Transaction: block.Transaction{
		Outputs: []block.TransactionOutput{{Address: kp.Address(), Amount: primitives.NewAmount(1)}},
	}}
	require.NoError(t, s.PutTransaction(tx))

	hash, err := tx.Hash()
	require.NoError(t, err)

	got, err := s.GetTransaction(hash)
	require.NoError(t, err)
	assert.Equal(t, tx, got)

	require.NoError(t, s.DeleteTransaction(hash))
	_, err = s.GetTransaction(hash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUTXOPutMarkClaimedGetByAddress(t *testing.T) {
	s := New()
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	txHash := primitives.HashBytes([]byte("tx"))

	u := storage.UTXORecord{TransactionHash: txHash, OutputIndex: 0, Address: kp.Address(), Amount: primitives.NewAmount(5)}
	require.NoError(t, s.PutUTXO(u))

	got, err := s.GetUTXO(txHash, 0)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	byAddr, err := s.UnclaimedUTXOsForAddress(kp.Address())
	require.NoError(t, err)
	assert.Len(t, byAddr, 1)

	require.NoError(t, s.MarkClaimed(txHash, 0))
	got, err = s.GetUTXO(txHash, 0)
	require.NoError(t, err)
	assert.True(t, got.Claimed)

	byAddr, err = s.UnclaimedUTXOsForAddress(kp.Address())
	require.NoError(t, err)
	assert.Empty(t, byAddr)
}

func TestPeerPutGet(t *testing.T) {
	s := New()
	require.NoError(t, s.PutPeer(storage.PeerRecord{Address: "10.0.0.1:9000", PeerID: "abc", Active: true}))
	got, err := s.GetPeer("10.0.0.1:9000")
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestHeadSetGet(t *testing.T) {
	s := New()
	_, err := s.GetHead()
	assert.ErrorIs(t, err, storage.ErrNotFound)

	h := primitives.HashBytes([]byte("head"))
	require.NoError(t, s.SetHead(h))
	got, err := s.GetHead()
	require.NoError(t, err)
	assert.Equal(t, h, got)
}
