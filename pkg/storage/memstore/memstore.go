// Package memstore is an in-memory storage.Store used by tests that need
// a real store without paying badger's disk setup cost.
package memstore

import (
	"sync"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/storage"
)

type utxoKey struct {
	tx  primitives.Hash
	idx uint32
}

// Store is a mutex-guarded, map-backed storage.Store.
type Store struct {
	mu sync.RWMutex

	blocksByHash map[primitives.Hash]storage.BlockRecord
	blocksByNum  map[uint64][]primitives.Hash
	blocksByPar  map[primitives.Hash][]primitives.Hash

	txs map[primitives.Hash]block.SignedTransaction

	utxos map[utxoKey]storage.UTXORecord

	peers map[string]storage.PeerRecord

	head     primitives.Hash
	hasHead  bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		blocksByHash: make(map[primitives.Hash]storage.BlockRecord),
		blocksByNum:  make(map[uint64][]primitives.Hash),
		blocksByPar:  make(map[primitives.Hash][]primitives.Hash),
		txs:          make(map[primitives.Hash]block.SignedTransaction),
		utxos:        make(map[utxoKey]storage.UTXORecord),
		peers:        make(map[string]storage.PeerRecord),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) PutBlock(rec storage.BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocksByHash[rec.Hash]; !exists {
		s.blocksByNum[rec.Block.BlockNum] = append(s.blocksByNum[rec.Block.BlockNum], rec.Hash)
		s.blocksByPar[rec.Block.ParentHash] = append(s.blocksByPar[rec.Block.ParentHash], rec.Hash)
	}
	s.blocksByHash[rec.Hash] = rec
	return nil
}

func (s *Store) GetBlockByHash(hash primitives.Hash) (storage.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.blocksByHash[hash]
	if !ok {
		return storage.BlockRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) GetBlocksByNum(blockNum uint64) ([]storage.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.BlockRecord
	for _, h := range s.blocksByNum[blockNum] {
		out = append(out, s.blocksByHash[h])
	}
	return out, nil
}

func (s *Store) GetBlocksByParentHash(parentHash primitives.Hash) ([]storage.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.BlockRecord
	for _, h := range s.blocksByPar[parentHash] {
		out = append(out, s.blocksByHash[h])
	}
	return out, nil
}

func (s *Store) MarkAbandoned(hash primitives.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.blocksByHash[hash]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Abandoned = true
	s.blocksByHash[hash] = rec
	return nil
}

func (s *Store) AllBlocks() ([]storage.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.BlockRecord, 0, len(s.blocksByHash))
	for _, rec := range s.blocksByHash {
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) PutTransaction(tx block.SignedTransaction) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[hash] = tx
	return nil
}

func (s *Store) DeleteTransaction(hash primitives.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txs, hash)
	return nil
}

func (s *Store) GetTransaction(hash primitives.Hash) (block.SignedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[hash]
	if !ok {
		return block.SignedTransaction{}, storage.ErrNotFound
	}
	return tx, nil
}

func (s *Store) AllTransactions() ([]block.SignedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]block.SignedTransaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) PutUTXO(u storage.UTXORecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos[utxoKey{u.TransactionHash, u.OutputIndex}] = u
	return nil
}

func (s *Store) MarkClaimed(txHash primitives.Hash, outputIndex uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := utxoKey{txHash, outputIndex}
	u, ok := s.utxos[key]
	if !ok {
		return storage.ErrNotFound
	}
	u.Claimed = true
	s.utxos[key] = u
	return nil
}

func (s *Store) GetUTXO(txHash primitives.Hash, outputIndex uint32) (storage.UTXORecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.utxos[utxoKey{txHash, outputIndex}]
	if !ok {
		return storage.UTXORecord{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) UnclaimedUTXOsForAddress(addr primitives.Address) ([]storage.UTXORecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.UTXORecord
	for _, u := range s.utxos {
		if u.Address == addr && !u.Claimed {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) AllUTXOs() ([]storage.UTXORecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.UTXORecord, 0, len(s.utxos))
	for _, u := range s.utxos {
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) PutPeer(p storage.PeerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.Address] = p
	return nil
}

func (s *Store) GetPeer(address string) (storage.PeerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[address]
	if !ok {
		return storage.PeerRecord{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) AllPeers() ([]storage.PeerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.PeerRecord, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) SetHead(hash primitives.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = hash
	s.hasHead = true
	return nil
}

func (s *Store) GetHead() (primitives.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasHead {
		return primitives.Hash{}, storage.ErrNotFound
	}
	return s.head, nil
}

var _ storage.Store = (*Store)(nil)
