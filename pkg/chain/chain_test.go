package chain

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/difficulty"
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

func TestAddBlockAcceptsGenesis(t *testing.T) {
	e := NewEngine(memstore.New())

	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))

	head, ok, err := e.Head()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, gen.Hash, head.Hash)
}

func TestAddBlockRejectsDuplicateGenesis(t *testing.T) {
	e := NewEngine(memstore.New())

	require.NoError(t, e.AddBlock(block.Genesis()))

	// A second, different block 0: re-adding the stored genesis itself is
	// an idempotent no-op (see TestAddBlockIsIdempotent).
	other := block.GenesisBlock
	other.Timestamp = 1
	otherHash, err := other.Hash()
	require.NoError(t, err)
	assert.ErrorIs(t, e.AddBlock(block.HashedBlock{Block: other, Hash: otherHash}), ErrDuplicateGenesis)
}

func TestAddBlockRejectsNonGenesisBeforeGenesis(t *testing.T) {
	e := NewEngine(memstore.New())
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	fakeParent := block.HashedBlock{Block: block.Block{BlockNum: 0}, Hash: primitives.HashBytes([]byte("nonexistent"))}
	b := nextBlock(t, fakeParent, kp.Address())
	assert.ErrorIs(t, e.AddBlock(b), ErrMissingGenesis)
}

func TestAddBlockExtendsHead(t *testing.T) {
	e := NewEngine(memstore.New())
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))

	b1 := nextBlock(t, gen, kp.Address())
	require.NoError(t, e.AddBlock(b1))

	head, _, err := e.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Block.BlockNum)
}

func TestAddBlockRejectsUnknownParent(t *testing.T) {
	e := NewEngine(memstore.New())
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, e.AddBlock(block.Genesis()))

	ghostParent := block.HashedBlock{Block: block.Block{BlockNum: 1, Difficulty: difficulty.DefaultDifficulty}, Hash: primitives.HashBytes([]byte("ghost"))}
	b := nextBlock(t, ghostParent, kp.Address())
	assert.ErrorIs(t, e.AddBlock(b), ErrUnknownParent)
}

func TestAddBlockRejectsDifficultyMismatch(t *testing.T) {
	e := NewEngine(memstore.New())
	kp, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))

	b1 := nextBlock(t, gen, kp.Address())
	b1.Block.Difficulty = difficulty.DefaultDifficulty + 1
	rehashed := mine(t, b1.Block)
	assert.ErrorIs(t, e.AddBlock(rehashed), ErrDifficultyMismatch)
}

func TestAddBlockDetectsTamperedHash(t *testing.T) {
	e := NewEngine(memstore.New())
	gen := block.Genesis()
	gen.Hash = primitives.HashBytes([]byte("not the real hash"))
	assert.ErrorIs(t, e.AddBlock(gen), ErrInvalidBlock)
}

func TestAddBlockIsIdempotent(t *testing.T) {
	e := NewEngine(memstore.New())
	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))
	require.NoError(t, e.AddBlock(gen))
}

func TestSpendingCreatesAndConsumesUTXOs(t *testing.T) {
	store := memstore.New()
	e := NewEngine(store)
	miner, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))

	trunk1 := nextBlock(t, gen, miner.Address())
	require.NoError(t, e.AddBlock(trunk1))

	rewardTxHash, err := trunk1.Block.Transactions[0].Transaction.Hash()
	require.NoError(t, err)

	spend := block.Transaction{
		Inputs:  []block.TransactionInput{{TransactionHash: rewardTxHash, OutputIndex: 0}},
		Outputs: []block.TransactionOutput{{Address: recipient.Address(), Amount: block.RewardAmount}},
	}
	spendHash, err := spend.Hash()
	require.NoError(t, err)
	signed := block.SignedTransaction{Transaction: spend, Signer: miner.Address(), Signature: miner.Sign(spendHash.Bytes())}

	b2 := nextBlock(t, trunk1, miner.Address(), signed)
	require.NoError(t, e.AddBlock(b2))

	head, _, err := e.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), head.Block.BlockNum)

	consumed, err := store.GetUTXO(rewardTxHash, 0)
	require.NoError(t, err)
	assert.True(t, consumed.Claimed)

	created, err := store.GetUTXO(spendHash, 0)
	require.NoError(t, err)
	assert.Equal(t, recipient.Address(), created.Address)
	assert.False(t, created.Claimed)
}

func TestAddOutstandingTransactionRejectsDoubleSpendInMempool(t *testing.T) {
	e := NewEngine(memstore.New())
	miner, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	r1, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	r2, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))
	trunk1 := nextBlock(t, gen, miner.Address())
	require.NoError(t, e.AddBlock(trunk1))
	rewardTxHash, err := trunk1.Block.Transactions[0].Transaction.Hash()
	require.NoError(t, err)

	build := func(to primitives.Address) block.SignedTransaction {
		tx := block.Transaction{
			Inputs:  []block.TransactionInput{{TransactionHash: rewardTxHash, OutputIndex: 0}},
			Outputs: []block.TransactionOutput{{Address: to, Amount: block.RewardAmount}},
		}
		h, err := tx.Hash()
		require.NoError(t, err)
		return block.SignedTransaction{Transaction: tx, Signer: miner.Address(), Signature: miner.Sign(h.Bytes())}
	}

	first := build(r1.Address())
	second := build(r2.Address())

	require.NoError(t, e.AddOutstandingTransaction(first))
	assert.ErrorIs(t, e.AddOutstandingTransaction(second), ErrInvalidTransaction)
}

func TestAddOutstandingTransactionRejectsWrongSigner(t *testing.T) {
	e := NewEngine(memstore.New())
	miner, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	impostor, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))
	trunk1 := nextBlock(t, gen, miner.Address())
	require.NoError(t, e.AddBlock(trunk1))
	rewardTxHash, err := trunk1.Block.Transactions[0].Transaction.Hash()
	require.NoError(t, err)

	tx := block.Transaction{
		Inputs:  []block.TransactionInput{{TransactionHash: rewardTxHash, OutputIndex: 0}},
		Outputs: []block.TransactionOutput{{Address: impostor.Address(), Amount: block.RewardAmount}},
	}
	h, err := tx.Hash()
	require.NoError(t, err)
	signed := block.SignedTransaction{Transaction: tx, Signer: impostor.Address(), Signature: impostor.Sign(h.Bytes())}

	assert.ErrorIs(t, e.AddOutstandingTransaction(signed), ErrInvalidTransaction)
}

func TestOffChainForkIsStoredWithoutMovingHead(t *testing.T) {
	e := NewEngine(memstore.New())
	miner, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))
	b1 := nextBlock(t, gen, miner.Address())
	require.NoError(t, e.AddBlock(b1))

	// A competing block extending genesis again: same height as b1, but
	// b1 is already head, so this one is stored off-chain.
	rival := nextBlock(t, gen, miner.Address())
	require.NoError(t, e.AddBlock(rival))

	head, _, err := e.Head()
	require.NoError(t, err)
	assert.Equal(t, b1.Hash, head.Hash)

	stored, err := e.BlockByHash(rival.Hash)
	require.NoError(t, err)
	assert.False(t, stored.Abandoned)
}

func TestAbandonmentSweepMarksStaleForksAndReturnsTxToMempool(t *testing.T) {
	e := NewEngine(memstore.New())
	miner, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := primitives.GenerateKeyPair()
	require.NoError(t, err)

	gen := block.Genesis()
	require.NoError(t, e.AddBlock(gen))

	// trunk1 becomes head first, so rival (built off gen, same height)
	// never extends the head at submission time and is stored off-chain
	// rather than ever winning it.
	trunk1 := nextBlock(t, gen, miner.Address())
	require.NoError(t, e.AddBlock(trunk1))

	rewardTxHash, err := trunk1.Block.Transactions[0].Transaction.Hash()
	require.NoError(t, err)
	tx := block.Transaction{
		Inputs:  []block.TransactionInput{{TransactionHash: rewardTxHash, OutputIndex: 0}},
		Outputs: []block.TransactionOutput{{Address: recipient.Address(), Amount: block.RewardAmount}},
	}
	h, err := tx.Hash()
	require.NoError(t, err)
	signed := block.SignedTransaction{Transaction: tx, Signer: miner.Address(), Signature: miner.Sign(h.Bytes())}

	rivalMiner, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	rival := nextBlock(t, gen, rivalMiner.Address(), signed)
	require.NoError(t, e.AddBlock(rival))

	// Extend the real head, trunk1, AbandonmentDepth more times so rival
	// (still at height 1) falls far enough behind to be swept.
	main := trunk1
	for i := 0; i < int(AbandonmentDepth); i++ {
		main = nextBlock(t, main, miner.Address())
		require.NoError(t, e.AddBlock(main))
	}

	stored, err := e.BlockByHash(rival.Hash)
	require.NoError(t, err)
	assert.True(t, stored.Abandoned)

	mempool, err := e.MempoolTransactions()
	require.NoError(t, err)
	require.Len(t, mempool, 1)
	mempoolHash, err := mempool[0].Hash()
	require.NoError(t, err)
	signedHash, err := signed.Hash()
	require.NoError(t, err)
	assert.Equal(t, signedHash, mempoolHash)
}
