package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
)

// Key prefixes for the flat badger keyspace. Every record is stored once
// under its primary key; secondary indexes (by block number, by parent
// hash, by owning address) store only the primary key as their value so a
// scan plus a point lookup reconstructs the record.
const (
	prefixBlockByHash   = "block/hash/"
	prefixBlockByNum    = "block/num/"
	prefixBlockByParent = "block/parent/"
	prefixTx            = "tx/"
	prefixUTXO          = "utxo/"
	prefixUTXOByAddr    = "utxo-addr/"
	prefixPeer          = "peer/"
	keyChainHead        = "chain/head"
)

// BadgerStore is the durable Store implementation backing a running node.
// It is grounded on the teacher's badger usage: one Store wraps one
// *badger.DB, every write happens in its own short transaction, and every
// record is JSON-encoded (the node's canonical encoding is reserved for
// hashing; storage values use plain encoding/json for speed and easy
// inspection with badger's own tools).
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if necessary) a badger database rooted
// at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

func numKey(n uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return fmt.Sprintf("%s%x", prefixBlockByNum, buf)
}

func blockHashKey(h primitives.Hash) string { return prefixBlockByHash + h.Hex() }
func parentKey(parent, self primitives.Hash) string {
	return prefixBlockByParent + parent.Hex() + "/" + self.Hex()
}
func numIndexKey(num uint64, self primitives.Hash) string {
	return numKey(num) + "/" + self.Hex()
}
func txKey(h primitives.Hash) string { return prefixTx + h.Hex() }
func utxoKey(txHash primitives.Hash, outIdx uint32) string {
	return fmt.Sprintf("%s%s/%d", prefixUTXO, txHash.Hex(), outIdx)
}
func utxoAddrIndexKey(addr primitives.Address, txHash primitives.Hash, outIdx uint32) string {
	return fmt.Sprintf("%s%s/%s/%d", prefixUTXOByAddr, addr.Hex(), txHash.Hex(), outIdx)
}
func peerKey(address string) string { return prefixPeer + address }

func (s *BadgerStore) PutBlock(rec BlockRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal block: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(blockHashKey(rec.Hash)), data); err != nil {
			return err
		}
		if err := txn.Set([]byte(numIndexKey(rec.Block.BlockNum, rec.Hash)), []byte(rec.Hash.Hex())); err != nil {
			return err
		}
		return txn.Set([]byte(parentKey(rec.Block.ParentHash, rec.Hash)), []byte(rec.Hash.Hex()))
	})
}

func (s *BadgerStore) GetBlockByHash(hash primitives.Hash) (BlockRecord, error) {
	var rec BlockRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blockHashKey(hash)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return BlockRecord{}, wrapNotFound(err)
	}
	return rec, nil
}

func (s *BadgerStore) scanHashIndex(prefix string) ([]primitives.Hash, error) {
	var hashes []primitives.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				h, err := primitives.HashFromHex(string(val))
				if err != nil {
					return err
				}
				hashes = append(hashes, h)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return hashes, err
}

func (s *BadgerStore) GetBlocksByNum(blockNum uint64) ([]BlockRecord, error) {
	hashes, err := s.scanHashIndex(numKey(blockNum) + "/")
	if err != nil {
		return nil, fmt.Errorf("storage: scan by num: %w", err)
	}
	return s.resolveBlocks(hashes)
}

func (s *BadgerStore) GetBlocksByParentHash(parentHash primitives.Hash) ([]BlockRecord, error) {
	hashes, err := s.scanHashIndex(prefixBlockByParent + parentHash.Hex() + "/")
	if err != nil {
		return nil, fmt.Errorf("storage: scan by parent: %w", err)
	}
	return s.resolveBlocks(hashes)
}

func (s *BadgerStore) resolveBlocks(hashes []primitives.Hash) ([]BlockRecord, error) {
	recs := make([]BlockRecord, 0, len(hashes))
	for _, h := range hashes {
		rec, err := s.GetBlockByHash(h)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *BadgerStore) MarkAbandoned(hash primitives.Hash) error {
	rec, err := s.GetBlockByHash(hash)
	if err != nil {
		return err
	}
	rec.Abandoned = true
	return s.PutBlock(rec)
}

func (s *BadgerStore) AllBlocks() ([]BlockRecord, error) {
	var recs []BlockRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefixBlockByHash)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec BlockRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan all blocks: %w", err)
	}
	return recs, nil
}

func (s *BadgerStore) PutTransaction(tx block.SignedTransaction) error {
	hash, err := tx.Hash()
	if err != nil {
		return fmt.Errorf("storage: hash transaction: %w", err)
	}
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("storage: marshal transaction: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(txKey(hash)), data)
	})
}

func (s *BadgerStore) DeleteTransaction(hash primitives.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(txKey(hash)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) GetTransaction(hash primitives.Hash) (block.SignedTransaction, error) {
	var tx block.SignedTransaction
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(txKey(hash)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tx)
		})
	})
	if err != nil {
		return block.SignedTransaction{}, wrapNotFound(err)
	}
	return tx, nil
}

func (s *BadgerStore) AllTransactions() ([]block.SignedTransaction, error) {
	var txs []block.SignedTransaction
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefixTx)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var tx block.SignedTransaction
				if err := json.Unmarshal(val, &tx); err != nil {
					return err
				}
				txs = append(txs, tx)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan all transactions: %w", err)
	}
	return txs, nil
}

func (s *BadgerStore) PutUTXO(u UTXORecord) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("storage: marshal utxo: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(utxoKey(u.TransactionHash, u.OutputIndex)), data); err != nil {
			return err
		}
		return txn.Set([]byte(utxoAddrIndexKey(u.Address, u.TransactionHash, u.OutputIndex)), nil)
	})
}

// MarkClaimed marks a UTXO spent in place rather than deleting its
// record, so GetUTXO continues to distinguish "spent" from "never
// existed". The per-address index only tracks unclaimed outputs, so the
// index entry is removed once the record is claimed.
func (s *BadgerStore) MarkClaimed(txHash primitives.Hash, outputIndex uint32) error {
	u, err := s.GetUTXO(txHash, outputIndex)
	if err != nil {
		return err
	}
	u.Claimed = true
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("storage: marshal claimed utxo: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(utxoKey(txHash, outputIndex)), data); err != nil {
			return err
		}
		err := txn.Delete([]byte(utxoAddrIndexKey(u.Address, txHash, outputIndex)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) GetUTXO(txHash primitives.Hash, outputIndex uint32) (UTXORecord, error) {
	var u UTXORecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(utxoKey(txHash, outputIndex)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	if err != nil {
		return UTXORecord{}, wrapNotFound(err)
	}
	return u, nil
}

func (s *BadgerStore) UnclaimedUTXOsForAddress(addr primitives.Address) ([]UTXORecord, error) {
	var recs []UTXORecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefixUTXOByAddr + addr.Hex() + "/")
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			txHash, outIdx, err := parseUTXOAddrKey(key)
			if err != nil {
				return err
			}
			rec, err := s.GetUTXO(txHash, outIdx)
			if err != nil {
				if err == ErrNotFound {
					continue
				}
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan utxos for address: %w", err)
	}
	return recs, nil
}

func (s *BadgerStore) AllUTXOs() ([]UTXORecord, error) {
	var recs []UTXORecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefixUTXO)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := string(it.Item().Key())
			if len(key) >= len(prefixUTXOByAddr) && key[:len(prefixUTXOByAddr)] == prefixUTXOByAddr {
				continue
			}
			err := it.Item().Value(func(val []byte) error {
				if len(val) == 0 {
					return nil
				}
				var u UTXORecord
				if err := json.Unmarshal(val, &u); err != nil {
					return err
				}
				recs = append(recs, u)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan all utxos: %w", err)
	}
	return recs, nil
}

func (s *BadgerStore) PutPeer(p PeerRecord) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage: marshal peer: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(peerKey(p.Address)), data)
	})
}

func (s *BadgerStore) GetPeer(address string) (PeerRecord, error) {
	var p PeerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(peerKey(address)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if err != nil {
		return PeerRecord{}, wrapNotFound(err)
	}
	return p, nil
}

func (s *BadgerStore) AllPeers() ([]PeerRecord, error) {
	var peers []PeerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefixPeer)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec PeerRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				peers = append(peers, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan all peers: %w", err)
	}
	return peers, nil
}

func (s *BadgerStore) SetHead(hash primitives.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyChainHead), []byte(hash.Hex()))
	})
}

func (s *BadgerStore) GetHead() (primitives.Hash, error) {
	var hash primitives.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyChainHead))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := primitives.HashFromHex(string(val))
			if err != nil {
				return err
			}
			hash = parsed
			return nil
		})
	})
	if err != nil {
		return primitives.Hash{}, wrapNotFound(err)
	}
	return hash, nil
}

func parseUTXOAddrKey(key string) (primitives.Hash, uint32, error) {
	rest := key[len(prefixUTXOByAddr):]
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return primitives.Hash{}, 0, fmt.Errorf("storage: malformed utxo address index key %q", key)
	}
	h, err := primitives.HashFromHex(parts[1])
	if err != nil {
		return primitives.Hash{}, 0, err
	}
	outIdx, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return primitives.Hash{}, 0, fmt.Errorf("storage: malformed utxo output index in key %q: %w", key, err)
	}
	return h, uint32(outIdx), nil
}

func wrapNotFound(err error) error {
	if err == ErrNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("storage: %w", err)
}

var _ Store = (*BadgerStore)(nil)
