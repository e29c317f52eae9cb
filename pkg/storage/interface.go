// Package storage defines the durable-storage contract the chain engine,
// mempool, miner, peer list and sync client all read and write through —
// the only state any of those components hold, since per SPEC_FULL.md §5
// they run as independent goroutines that share nothing but the store.
package storage

import (
	"errors"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
)

// ErrNotFound is returned by Get-style lookups when no record exists for
// the given key.
var ErrNotFound = errors.New("storage: not found")

// BlockRecord is a stored, accepted block together with the bookkeeping
// the chain engine needs to reconstruct fork state on restart.
type BlockRecord struct {
	Block      block.Block     `json:"block"`
	Hash       primitives.Hash `json:"hash"`
	Abandoned  bool            `json:"abandoned"`
}

// UTXORecord is a record of a single transaction output. A record exists
// for every output of every transaction in every accepted block, whether
// or not it has been spent; Claimed distinguishes the two (see
// UTXOStore.MarkClaimed) rather than the record being deleted.
type UTXORecord struct {
	TransactionHash primitives.Hash    `json:"transaction_hash"`
	OutputIndex     uint32             `json:"output_index"`
	Address         primitives.Address `json:"address"`
	Amount          primitives.Amount  `json:"amount"`
	Claimed         bool               `json:"claimed"`
}

// PeerRecord is a durable record of a known peer and its last observed
// liveness.
type PeerRecord struct {
	Address    string `json:"address"`
	Port       uint16 `json:"port"`
	PeerID     string `json:"peer_id"`
	Active     bool   `json:"active"`
	LastSeenMs int64  `json:"last_seen_ms"`
}

// Store is the full durable-storage surface used by the node. A single
// implementation backs all of it so every actor sees a consistent view
// without coordinating directly with one another.
type Store interface {
	BlockStore
	TransactionStore
	UTXOStore
	PeerStore
	ChainStateStore

	Close() error
}

// BlockStore persists accepted blocks, indexed by hash, by block number,
// and by parent hash (to find children during the sync client's forward
// walk).
type BlockStore interface {
	PutBlock(rec BlockRecord) error
	GetBlockByHash(hash primitives.Hash) (BlockRecord, error)
	GetBlocksByNum(blockNum uint64) ([]BlockRecord, error)
	GetBlocksByParentHash(parentHash primitives.Hash) ([]BlockRecord, error)
	MarkAbandoned(hash primitives.Hash) error
	AllBlocks() ([]BlockRecord, error)
}

// TransactionStore persists the mempool: transactions observed but not yet
// confirmed in a block on the main chain.
type TransactionStore interface {
	PutTransaction(tx block.SignedTransaction) error
	DeleteTransaction(hash primitives.Hash) error
	GetTransaction(hash primitives.Hash) (block.SignedTransaction, error)
	AllTransactions() ([]block.SignedTransaction, error)
}

// UTXOStore tracks every transaction output ever accepted, claimed or not.
// Spending an output marks it claimed rather than deleting it, so the
// record-per-output invariant holds for the life of the chain.
type UTXOStore interface {
	PutUTXO(u UTXORecord) error
	MarkClaimed(txHash primitives.Hash, outputIndex uint32) error
	GetUTXO(txHash primitives.Hash, outputIndex uint32) (UTXORecord, error)
	UnclaimedUTXOsForAddress(addr primitives.Address) ([]UTXORecord, error)
	AllUTXOs() ([]UTXORecord, error)
}

// PeerStore tracks the set of peers this node has learned about through
// gossip.
type PeerStore interface {
	PutPeer(p PeerRecord) error
	GetPeer(address string) (PeerRecord, error)
	AllPeers() ([]PeerRecord, error)
}

// ChainStateStore persists the single pointer to the current chain head.
type ChainStateStore interface {
	SetHead(hash primitives.Hash) error
	GetHead() (primitives.Hash, error)
}
