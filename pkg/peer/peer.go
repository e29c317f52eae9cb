// Package peer tracks the set of other nodes this node has learned about
// through gossip. It replaces the teacher's libp2p-based PeerInfo/host
// machinery (pkg/net, pkg/sync's host.Host field) with the flat
// address-list model the wire protocol calls for, grounded on
// original_source's peer_list.py active/inactive bookkeeping.
package peer

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gochain/radcoin/pkg/storage"
)

// Peer identifies one other node: the network address and port a client
// connects to, the id that node advertises about itself, and the
// last time (in epoch milliseconds) it was observed.
type Peer struct {
	Address    string `json:"address"`
	Port       uint16 `json:"port"`
	PeerID     string `json:"peer_id"`
	LastSeenMs int64  `json:"last_seen_ms"`
}

// List is the durable, deduplicated set of known peers, backed by a
// storage.PeerStore. Peers observed as unreachable are marked inactive
// rather than removed, so a transient outage doesn't erase gossip history.
type List struct {
	mu    sync.Mutex
	store storage.PeerStore
	self  string // this node's own advertised address, never gossiped back to itself
	rng   *rand.Rand
}

// New returns a List backed by store. selfAddress is excluded from every
// query so a node never adds or syncs against itself.
func New(store storage.PeerStore, selfAddress string) *List {
	return &List{
		store: store,
		self:  selfAddress,
		rng:   rand.New(rand.NewSource(rand.Int63())),
	}
}

// Add records p as known and active, inserting a new record or updating
// last_seen on an already-known one.
func (l *List) Add(p Peer) error {
	if p.Address == "" || p.Address == l.self {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lastSeen := p.LastSeenMs
	if lastSeen == 0 {
		lastSeen = time.Now().UnixMilli()
	}
	rec := storage.PeerRecord{Address: p.Address, Port: p.Port, PeerID: p.PeerID, Active: true, LastSeenMs: lastSeen}
	if err := l.store.PutPeer(rec); err != nil {
		return fmt.Errorf("peer: add %s: %w", p.Address, err)
	}
	return nil
}

// Has reports whether address is already known, active or not.
func (l *List) Has(address string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.store.GetPeer(address)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("peer: has %s: %w", address, err)
	}
	return true, nil
}

// MarkInactive flags address as unreachable, typically after a PeerIO
// error talking to it. Inactive peers are excluded from sync targets and
// peer-sample responses but are retained in storage in case they come
// back.
func (l *List) MarkInactive(address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.store.GetPeer(address)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return fmt.Errorf("peer: mark inactive %s: %w", address, err)
	}
	rec.Active = false
	if err := l.store.PutPeer(rec); err != nil {
		return fmt.Errorf("peer: mark inactive %s: %w", address, err)
	}
	return nil
}

// MarkActive flags address as reachable again, e.g. after a successful
// request following a prior failure.
func (l *List) MarkActive(address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.store.GetPeer(address)
	if err != nil {
		return fmt.Errorf("peer: mark active %s: %w", address, err)
	}
	rec.Active = true
	rec.LastSeenMs = time.Now().UnixMilli()
	if err := l.store.PutPeer(rec); err != nil {
		return fmt.Errorf("peer: mark active %s: %w", address, err)
	}
	return nil
}

// AllActive returns every peer currently marked active, excluding self.
func (l *List) AllActive() ([]Peer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, err := l.store.AllPeers()
	if err != nil {
		return nil, fmt.Errorf("peer: list active: %w", err)
	}
	var out []Peer
	for _, r := range recs {
		if !r.Active || r.Address == l.self {
			continue
		}
		out = append(out, Peer{Address: r.Address, Port: r.Port, PeerID: r.PeerID, LastSeenMs: r.LastSeenMs})
	}
	return out, nil
}

// Random returns one uniformly-random active peer, or ok=false if none are
// known.
func (l *List) Random() (Peer, bool, error) {
	active, err := l.AllActive()
	if err != nil {
		return Peer{}, false, err
	}
	if len(active) == 0 {
		return Peer{}, false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return active[l.rng.Intn(len(active))], true, nil
}

// Sample returns up to n distinct, uniformly-sampled active peers. It
// returns fewer than n if fewer are known.
func (l *List) Sample(n int) ([]Peer, error) {
	active, err := l.AllActive()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rng.Shuffle(len(active), func(i, j int) { active[i], active[j] = active[j], active[i] })
	if n > len(active) {
		n = len(active)
	}
	return active[:n], nil
}
