// Package chain implements the chain engine: block and transaction
// validation, UTXO bookkeeping, the canonical-head rule, and abandonment
// of stale forks. It is grounded on the teacher's pkg/chain/chain.go — the
// mutex-guarded struct wrapping a storage backend, the AddBlock entry
// point, and the getter surface — but replaces the teacher's
// accumulated-difficulty fork choice with a single-step rule (a block
// becomes head only when its parent is the current head), and replaces
// ECDSA/UTXO script validation with ed25519 ownership checks. Block
// numbers are not compared: a block on any other branch is stored
// off-chain and never becomes head, even when its block_num is higher
// than the head's, so a competing branch does not take over the head.
package chain

import (
	"fmt"
	"sync"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/difficulty"
	"github.com/gochain/radcoin/pkg/storage"
)

// AbandonmentDepth is how many blocks behind the head an off-chain block
// must fall before it is swept: marked abandoned and, if its transactions
// still revalidate against current UTXO state, reinserted into the
// mempool.
const AbandonmentDepth uint64 = 10

// Engine owns all chain-state mutation. Every exported method that
// mutates chain state or reads through the head takes Engine's single
// mutex, matching the teacher's single-writer chain struct; the plain
// store lookups (BlockByHash, BlocksByParentHash, MempoolTransactions) go
// straight to the store. Concurrent callers (the API server, the sync
// client, the miner) all funnel through the same Engine instance.
type Engine struct {
	mu    sync.Mutex
	store storage.Store
}

// NewEngine wraps store with chain validation and bookkeeping logic.
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// Height returns the block number of the current head, or false if no
// genesis block has been accepted yet.
func (e *Engine) Height() (uint64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	head, ok, err := e.currentHead()
	if err != nil || !ok {
		return 0, ok, err
	}
	return head.Block.BlockNum, true, nil
}

// Head returns the current head block record.
func (e *Engine) Head() (storage.BlockRecord, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentHead()
}

// BlockByHash returns the stored block (on any branch) with the given
// hash.
func (e *Engine) BlockByHash(hash primitives.Hash) (storage.BlockRecord, error) {
	return e.store.GetBlockByHash(hash)
}

// BlockByNum returns the canonical (head-path) block at the given height.
func (e *Engine) BlockByNum(blockNum uint64) (storage.BlockRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	head, ok, err := e.currentHead()
	if err != nil {
		return storage.BlockRecord{}, err
	}
	if !ok {
		return storage.BlockRecord{}, storage.ErrNotFound
	}
	rec, found := e.ancestorByNum(head.Hash, blockNum)
	if !found {
		return storage.BlockRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// BlocksByParentHash returns every stored block (any branch) whose
// parent_hash matches, used by the sync client's successor walk.
func (e *Engine) BlocksByParentHash(parentHash primitives.Hash) ([]storage.BlockRecord, error) {
	return e.store.GetBlocksByParentHash(parentHash)
}

// MempoolTransactions returns every transaction currently in the mempool.
func (e *Engine) MempoolTransactions() ([]block.SignedTransaction, error) {
	return e.store.AllTransactions()
}

// NextDifficulty returns the difficulty a candidate block extending
// parentHash must meet, so the miner can assemble a valid candidate
// before searching for a proof-of-work solution.
func (e *Engine) NextDifficulty(parentHash primitives.Hash) (uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	parentRec, err := e.store.GetBlockByHash(parentHash)
	if err != nil {
		return 0, fmt.Errorf("chain: lookup parent: %w", err)
	}
	return difficulty.NextDifficulty(pathReader{e, parentHash}, parentRec.Block.BlockNum+1), nil
}

// AddBlock validates hb and, if valid, applies it: extending the chain's
// UTXO state and advancing the head when hb directly extends the current
// head, or storing it as an off-chain branch candidate otherwise. AddBlock
// is idempotent: re-adding an already-known block is a no-op.
func (e *Engine) AddBlock(hb block.HashedBlock) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	computedHash, err := hb.Block.Hash()
	if err != nil {
		return fmt.Errorf("chain: hash block: %w", err)
	}
	if computedHash != hb.Hash {
		return fmt.Errorf("chain: %w: declared hash does not match block contents", ErrInvalidBlock)
	}

	if _, err := e.store.GetBlockByHash(hb.Hash); err == nil {
		return nil
	} else if err != storage.ErrNotFound {
		return fmt.Errorf("chain: lookup existing block: %w", err)
	}

	if err := hb.Block.ValidateShape(); err != nil {
		return fmt.Errorf("chain: %w", err)
	}

	head, hasHead, err := e.currentHead()
	if err != nil {
		return err
	}

	isGenesis := hb.Block.BlockNum == 0

	if isGenesis {
		if hasHead {
			return fmt.Errorf("chain: %w", ErrDuplicateGenesis)
		}
		// Genesis isn't mined or negotiated: it's a hardcoded network
		// constant, so the only valid genesis is a byte-for-byte match of
		// it. Comparing the hash (already verified above to match the
		// block's actual contents) stands in for comparing the block
		// itself, which isn't possible: Block holds slice fields and so
		// isn't comparable with ==.
		if hb.Hash != block.GenesisHash {
			return fmt.Errorf("chain: %w: genesis must match the network's hardcoded genesis block", ErrInvalidBlock)
		}
	} else {
		if !hasHead {
			return fmt.Errorf("chain: %w", ErrMissingGenesis)
		}
		parentRec, err := e.store.GetBlockByHash(hb.Block.ParentHash)
		if err != nil {
			if err == storage.ErrNotFound {
				return fmt.Errorf("chain: %w", ErrUnknownParent)
			}
			return fmt.Errorf("chain: lookup parent: %w", err)
		}
		if hb.Block.BlockNum != parentRec.Block.BlockNum+1 {
			return fmt.Errorf("chain: %w: block_num must be parent's block_num + 1", ErrInvalidBlock)
		}
		expected := difficulty.NextDifficulty(pathReader{e, hb.Block.ParentHash}, hb.Block.BlockNum)
		if hb.Block.Difficulty != expected {
			return fmt.Errorf("chain: %w: want %d, got %d", ErrDifficultyMismatch, expected, hb.Block.Difficulty)
		}
	}

	miningHash, err := hb.Block.MiningHash()
	if err != nil {
		return fmt.Errorf("chain: mining hash: %w", err)
	}
	if !block.MeetsDifficulty(miningHash, hb.Block.Difficulty) {
		return fmt.Errorf("chain: %w: proof of work does not meet declared difficulty", ErrInvalidBlock)
	}

	extendsHead := isGenesis || hb.Block.ParentHash == head.Hash

	if !extendsHead {
		if err := e.store.PutBlock(storage.BlockRecord{Block: hb.Block, Hash: hb.Hash}); err != nil {
			return fmt.Errorf("chain: store off-chain block: %w", err)
		}
		return nil
	}

	if err := e.applyBlock(hb); err != nil {
		return err
	}
	if err := e.store.SetHead(hb.Hash); err != nil {
		return fmt.Errorf("chain: set head: %w", err)
	}
	return e.sweepAbandoned(hb.Block.BlockNum)
}

// AddOutstandingTransaction validates st against current UTXO state and
// the existing mempool, and if valid admits it to the mempool.
func (e *Engine) AddOutstandingTransaction(st block.SignedTransaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addOutstandingTransactionLocked(st)
}

func (e *Engine) addOutstandingTransactionLocked(st block.SignedTransaction) error {
	if st.Transaction.IsReward() {
		return fmt.Errorf("chain: %w: reward transactions cannot be submitted directly", ErrInvalidTransaction)
	}
	if len(st.Transaction.Inputs) == 0 {
		return fmt.Errorf("chain: %w: no inputs", ErrInvalidTransaction)
	}
	if len(st.Transaction.Outputs) == 0 {
		return fmt.Errorf("chain: %w: no outputs", ErrInvalidTransaction)
	}
	if err := st.VerifySignature(); err != nil {
		return fmt.Errorf("chain: %w: %v", ErrInvalidTransaction, err)
	}

	pending, err := e.store.AllTransactions()
	if err != nil {
		return fmt.Errorf("chain: list mempool: %w", err)
	}
	claimed := make(map[string]bool, len(pending))
	for _, p := range pending {
		for _, in := range p.Transaction.Inputs {
			claimed[utxoRefKey(in.TransactionHash, in.OutputIndex)] = true
		}
	}

	var inputTotal primitives.Amount
	for _, in := range st.Transaction.Inputs {
		if claimed[utxoRefKey(in.TransactionHash, in.OutputIndex)] {
			return fmt.Errorf("chain: %w: input already claimed by a pending transaction", ErrInvalidTransaction)
		}
		utxo, err := e.store.GetUTXO(in.TransactionHash, in.OutputIndex)
		if err != nil {
			if err == storage.ErrNotFound {
				return fmt.Errorf("chain: %w: input not found or already spent", ErrInvalidTransaction)
			}
			return fmt.Errorf("chain: lookup utxo: %w", err)
		}
		if utxo.Claimed {
			return fmt.Errorf("chain: %w: input not found or already spent", ErrInvalidTransaction)
		}
		if utxo.Address != st.Signer {
			return fmt.Errorf("chain: %w: signer does not own input", ErrInvalidTransaction)
		}
		inputTotal = inputTotal.Add(utxo.Amount)
	}

	var outputTotal primitives.Amount
	for _, out := range st.Transaction.Outputs {
		outputTotal = outputTotal.Add(out.Amount)
	}
	if !inputTotal.Equal(outputTotal) {
		return fmt.Errorf("chain: %w: inputs (%s) must equal outputs (%s)", ErrInvalidTransaction, inputTotal, outputTotal)
	}

	if err := e.store.PutTransaction(st); err != nil {
		return fmt.Errorf("chain: add to mempool: %w", err)
	}
	return nil
}

// applyBlock validates every transaction's UTXO effects, then performs
// them atomically against the store and removes any of them from the
// mempool. It assumes the caller holds e.mu.
func (e *Engine) applyBlock(hb block.HashedBlock) error {
	type effect struct {
		spend  []storage.UTXORecord
		create []storage.UTXORecord
	}

	var effects []effect
	spentInBlock := make(map[string]bool)

	for i, st := range hb.Block.Transactions {
		txHash, err := st.Transaction.Hash()
		if err != nil {
			return fmt.Errorf("chain: hash transaction %d: %w", i, err)
		}

		if st.Transaction.IsReward() {
			out := st.Transaction.Outputs[0]
			effects = append(effects, effect{
				create: []storage.UTXORecord{{TransactionHash: txHash, OutputIndex: 0, Address: out.Address, Amount: out.Amount}},
			})
			continue
		}

		var spend []storage.UTXORecord
		var inputTotal primitives.Amount
		for _, in := range st.Transaction.Inputs {
			key := utxoRefKey(in.TransactionHash, in.OutputIndex)
			if spentInBlock[key] {
				return fmt.Errorf("chain: %w: transaction %d double-spends within its block", ErrInvalidTransaction, i)
			}
			utxo, err := e.store.GetUTXO(in.TransactionHash, in.OutputIndex)
			if err != nil {
				if err == storage.ErrNotFound {
					return fmt.Errorf("chain: %w: transaction %d input not found or already spent", ErrInvalidTransaction, i)
				}
				return fmt.Errorf("chain: lookup utxo: %w", err)
			}
			if utxo.Claimed {
				return fmt.Errorf("chain: %w: transaction %d input not found or already spent", ErrInvalidTransaction, i)
			}
			if utxo.Address != st.Signer {
				return fmt.Errorf("chain: %w: transaction %d signer does not own input", ErrInvalidTransaction, i)
			}
			spentInBlock[key] = true
			spend = append(spend, utxo)
			inputTotal = inputTotal.Add(utxo.Amount)
		}

		var outputTotal primitives.Amount
		create := make([]storage.UTXORecord, 0, len(st.Transaction.Outputs))
		for idx, out := range st.Transaction.Outputs {
			outputTotal = outputTotal.Add(out.Amount)
			create = append(create, storage.UTXORecord{TransactionHash: txHash, OutputIndex: uint32(idx), Address: out.Address, Amount: out.Amount})
		}
		if !inputTotal.Equal(outputTotal) {
			return fmt.Errorf("chain: %w: transaction %d inputs (%s) must equal outputs (%s)", ErrInvalidTransaction, i, inputTotal, outputTotal)
		}

		effects = append(effects, effect{spend: spend, create: create})
	}

	for _, eff := range effects {
		for _, u := range eff.spend {
			if err := e.store.MarkClaimed(u.TransactionHash, u.OutputIndex); err != nil {
				return fmt.Errorf("chain: spend utxo: %w", err)
			}
		}
		for _, u := range eff.create {
			if err := e.store.PutUTXO(u); err != nil {
				return fmt.Errorf("chain: create utxo: %w", err)
			}
		}
	}

	for _, st := range hb.Block.NonRewardTransactions() {
		h, err := st.Hash()
		if err != nil {
			continue
		}
		if err := e.store.DeleteTransaction(h); err != nil {
			return fmt.Errorf("chain: remove confirmed transaction from mempool: %w", err)
		}
	}

	if err := e.store.PutBlock(storage.BlockRecord{Block: hb.Block, Hash: hb.Hash}); err != nil {
		return fmt.Errorf("chain: store block: %w", err)
	}
	return nil
}

// sweepAbandoned marks every off-chain block at least AbandonmentDepth
// behind the new head as abandoned, and attempts to reinsert its
// transactions into the mempool.
func (e *Engine) sweepAbandoned(headBlockNum uint64) error {
	if headBlockNum < AbandonmentDepth {
		return nil
	}
	threshold := headBlockNum - AbandonmentDepth

	head, hasHead, err := e.currentHead()
	if err != nil {
		return err
	}
	if !hasHead {
		return nil
	}

	ancestors := make(map[primitives.Hash]bool)
	cur := head.Hash
	for {
		ancestors[cur] = true
		rec, err := e.store.GetBlockByHash(cur)
		if err != nil {
			break
		}
		if rec.Block.ParentHash.IsZero() || rec.Block.ParentHash == cur {
			break
		}
		cur = rec.Block.ParentHash
	}

	all, err := e.store.AllBlocks()
	if err != nil {
		return fmt.Errorf("chain: sweep abandoned: %w", err)
	}

	for _, rec := range all {
		if rec.Abandoned || ancestors[rec.Hash] {
			continue
		}
		if rec.Block.BlockNum > threshold {
			continue
		}
		if err := e.store.MarkAbandoned(rec.Hash); err != nil {
			return fmt.Errorf("chain: mark abandoned: %w", err)
		}
		for _, st := range rec.Block.NonRewardTransactions() {
			_ = e.addOutstandingTransactionLocked(st)
		}
	}
	return nil
}

func (e *Engine) currentHead() (storage.BlockRecord, bool, error) {
	h, err := e.store.GetHead()
	if err != nil {
		if err == storage.ErrNotFound {
			return storage.BlockRecord{}, false, nil
		}
		return storage.BlockRecord{}, false, fmt.Errorf("chain: get head: %w", err)
	}
	rec, err := e.store.GetBlockByHash(h)
	if err != nil {
		return storage.BlockRecord{}, false, fmt.Errorf("chain: load head block: %w", err)
	}
	return rec, true, nil
}

// ancestorByNum walks backward from fromHash following parent links until
// it finds the block at targetNum.
func (e *Engine) ancestorByNum(fromHash primitives.Hash, targetNum uint64) (storage.BlockRecord, bool) {
	cur := fromHash
	for {
		rec, err := e.store.GetBlockByHash(cur)
		if err != nil {
			return storage.BlockRecord{}, false
		}
		if rec.Block.BlockNum == targetNum {
			return rec, true
		}
		if rec.Block.BlockNum < targetNum || rec.Block.ParentHash == cur {
			return storage.BlockRecord{}, false
		}
		cur = rec.Block.ParentHash
	}
}

// pathReader adapts Engine to difficulty.ChainReader along the ancestor
// path of a specific candidate parent, since forks mean block number alone
// doesn't uniquely identify a block.
type pathReader struct {
	engine     *Engine
	parentHash primitives.Hash
}

func (p pathReader) BlockDifficulty(n uint64) (uint8, bool) {
	rec, ok := p.engine.ancestorByNum(p.parentHash, n)
	if !ok {
		return 0, false
	}
	return rec.Block.Difficulty, true
}

func (p pathReader) BlockTimestamp(n uint64) (primitives.Timestamp, bool) {
	rec, ok := p.engine.ancestorByNum(p.parentHash, n)
	if !ok {
		return 0, false
	}
	return rec.Block.Timestamp, true
}

func utxoRefKey(txHash primitives.Hash, outputIndex uint32) string {
	return fmt.Sprintf("%s/%d", txHash.Hex(), outputIndex)
}
