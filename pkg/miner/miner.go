// Package miner implements the mining loop: assembling a candidate block
// from the mempool plus a reward transaction, then searching for mining
// entropy that satisfies the block's difficulty target. It is grounded on
// the teacher's pkg/miner/miner.go ticker/goroutine shape, replacing its
// naive sequential-nonce search with entropy refreshed every attempt and
// preemption on head change, and adding a one-shot genesis path the
// teacher never needed.
package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/chain"
)

// searchSlice bounds how long a single proof-of-work search runs before
// checking whether the chain head has moved, so a losing race against a
// peer's block doesn't waste an arbitrary amount of work.
const searchSlice = time.Second

// Config controls the miner's behavior.
type Config struct {
	// RewardAddress receives the coinbase reward of every block this
	// miner successfully mines.
	RewardAddress primitives.Address

	// MaxTransactionsPerBlock caps how many mempool transactions are
	// included per candidate block.
	MaxTransactionsPerBlock int

	// Throttle is the fraction of wall-clock time, in (0,1], this miner
	// spends searching versus idle — the duty-cycle limit configured via
	// miner_throttle. 1 (the default) means mine continuously.
	Throttle float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(rewardAddress primitives.Address) Config {
	return Config{RewardAddress: rewardAddress, MaxTransactionsPerBlock: 1000, Throttle: 1}
}

// Miner repeatedly assembles and mines candidate blocks on top of the
// current chain head, submitting each solved block back to the chain
// engine.
type Miner struct {
	engine *chain.Engine
	config Config
}

// New returns a Miner driving engine with the given config.
func New(engine *chain.Engine, config Config) *Miner {
	return &Miner{engine: engine, config: config}
}

// Run mines continuously until ctx is cancelled, as its own goroutine
// sharing only the durable chain engine with the API server and sync
// client (see SPEC_FULL.md §5 — no channels, no shared in-memory state).
func (m *Miner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := m.mineOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("miner: %w", err)
		}

		if idle := m.idleDuration(); idle > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idle):
			}
		}
	}
}

// idleDuration returns how long to sleep after a mining attempt to honor
// Throttle's duty cycle. A Throttle outside (0,1) means mine continuously.
func (m *Miner) idleDuration() time.Duration {
	if m.config.Throttle <= 0 || m.config.Throttle >= 1 {
		return 0
	}
	return time.Duration(float64(searchSlice) * (1 - m.config.Throttle) / m.config.Throttle)
}

// mineOnce assembles one candidate block and searches for a solution,
// submitting it if found before the head moves out from under it.
func (m *Miner) mineOnce(ctx context.Context) error {
	head, hasHead, err := m.engine.Head()
	if err != nil {
		return fmt.Errorf("read head: %w", err)
	}
	if !hasHead {
		// No genesis yet; nothing to extend. The caller is expected to
		// have mined genesis via MineGenesis before starting Run.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(searchSlice):
			return nil
		}
	}

	candidate, err := m.assembleCandidate(head.Block, head.Hash)
	if err != nil {
		return fmt.Errorf("assemble candidate: %w", err)
	}

	solved, found, err := search(ctx, candidate, searchSlice, func() bool {
		newHead, ok, err := m.engine.Head()
		return err == nil && ok && newHead.Hash != head.Hash
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if !found {
		return nil
	}

	if err := m.engine.AddBlock(solved); err != nil {
		return fmt.Errorf("submit mined block: %w", err)
	}
	return nil
}

// MineGenesis submits the network's hardcoded genesis block to engine.
// Despite the name, nothing is actually mined: genesis is a fixed constant
// (block.Genesis) shared by every node, not a proof-of-work search, so two
// independently initialized nodes always agree on block 0. Call this once
// at node initialization time (--initialize).
func MineGenesis(ctx context.Context, engine *chain.Engine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := engine.AddBlock(block.Genesis()); err != nil {
		return fmt.Errorf("miner: submit genesis: %w", err)
	}
	return nil
}

// assembleCandidate builds the next block extending (parentBlock,
// parentHash): the correct difficulty for that height, a reward
// transaction paying this miner, and as many mempool transactions as fit
// within MaxTransactionsPerBlock.
func (m *Miner) assembleCandidate(parentBlock block.Block, parentHash primitives.Hash) (block.Block, error) {
	nextDifficulty, err := m.engine.NextDifficulty(parentHash)
	if err != nil {
		return block.Block{}, fmt.Errorf("compute next difficulty: %w", err)
	}

	pending, err := m.engine.MempoolTransactions()
	if err != nil {
		return block.Block{}, fmt.Errorf("read mempool: %w", err)
	}
	if len(pending) > m.config.MaxTransactionsPerBlock {
		pending = pending[:m.config.MaxTransactionsPerBlock]
	}

	txs := make([]block.SignedTransaction, 0, len(pending)+1)
	txs = append(txs, rewardTransaction(m.config.RewardAddress))
	txs = append(txs, pending...)

	return block.Block{
		ParentHash:   parentHash,
		BlockNum:     parentBlock.BlockNum + 1,
		Difficulty:   nextDifficulty,
		Timestamp:    primitives.Now(),
		Transactions: txs,
	}, nil
}

func rewardTransaction(to primitives.Address) block.SignedTransaction {
	return block.SignedTransaction{
		Transaction: block.Transaction{Outputs: []block.TransactionOutput{{Address: to, Amount: block.RewardAmount}}},
	}
}

// search hunts for mining entropy satisfying candidate.Difficulty, trying
// fresh random entropy each attempt. It runs for at most slice (0 means
// unbounded) or until preempted() reports true or ctx is cancelled.
func search(ctx context.Context, candidate block.Block, slice time.Duration, preempted func() bool) (block.HashedBlock, bool, error) {
	deadline := time.Time{}
	if slice > 0 {
		deadline = time.Now().Add(slice)
	}

	for {
		select {
		case <-ctx.Done():
			return block.HashedBlock{}, false, nil
		default:
		}

		if preempted() {
			return block.HashedBlock{}, false, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return block.HashedBlock{}, false, nil
		}

		entropy, err := primitives.RandomBytes(32)
		if err != nil {
			return block.HashedBlock{}, false, fmt.Errorf("generate mining entropy: %w", err)
		}
		candidate.MiningEntropy = entropy

		miningHash, err := candidate.MiningHash()
		if err != nil {
			return block.HashedBlock{}, false, fmt.Errorf("compute mining hash: %w", err)
		}
		if !block.MeetsDifficulty(miningHash, candidate.Difficulty) {
			continue
		}

		hash, err := candidate.Hash()
		if err != nil {
			return block.HashedBlock{}, false, fmt.Errorf("compute block hash: %w", err)
		}
		return block.HashedBlock{Block: candidate, Hash: hash}, true, nil
	}
}
