// Package sync implements the node's outbound synchronization actor: a
// periodic poll loop that samples known peers and pulls their peers,
// mempool transactions, and chain head via plain HTTP+JSON round trips.
// It is grounded on the teacher's pkg/sync/sync.go SyncManager — a
// mutex-guarded struct running its own ticker loop and tracking peer
// state — with its libp2p/protobuf transport (pkg/sync/protocol.go)
// replaced by a net/http client hitting the peer's own pkg/api routes,
// since this node has no libp2p host.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gochain/radcoin/internal/logging"
	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/chain"
	"github.com/gochain/radcoin/pkg/peer"
)

var log = logging.Get("sync")

// Config controls the poll loop's cadence and fan-out.
type Config struct {
	PollDelay      time.Duration
	PeerSampleSize int
	SelfPeerID     string
	Advertize      bool
	AdvertizeAddr  string
	RequestTimeout time.Duration
}

// DefaultRequestTimeout bounds every peer HTTP round trip, matching the
// spec's "each peer request has a bounded wall-clock timeout; on timeout
// the peer is simply skipped" requirement.
const DefaultRequestTimeout = 5 * time.Second

// Client runs the periodic sync loop against a fixed peer list and chain
// engine.
type Client struct {
	engine *chain.Engine
	peers  *peer.List
	cfg    Config
	http   *http.Client
}

// New builds a sync Client. If cfg.RequestTimeout is zero,
// DefaultRequestTimeout is used.
func New(engine *chain.Engine, peers *peer.List, cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		engine: engine,
		peers:  peers,
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
	}
}

// Run executes the poll loop until ctx is cancelled, as its own goroutine
// sharing only the durable chain engine and peer store with the API
// server and miner.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick samples up to PeerSampleSize active peers and syncs against each in
// turn.
func (c *Client) tick(ctx context.Context) {
	sample, err := c.peers.Sample(c.cfg.PeerSampleSize)
	if err != nil {
		log.WithError(err).Error("sample peers")
		return
	}
	for _, p := range sample {
		c.syncWithPeer(ctx, p)
	}
}

// syncWithPeer performs one sync cycle against p: peer exchange, mempool
// transaction exchange, then head catch-up. Any I/O error marks p
// inactive and abandons the remaining steps for this tick.
func (c *Client) syncWithPeer(ctx context.Context, p peer.Peer) {
	if err := c.requestPeers(ctx, p); err != nil {
		log.WithError(err).WithField("peer", p.Address).Warn("request_peers failed")
		_ = c.peers.MarkInactive(p.Address)
		return
	}
	if err := c.requestTransactions(ctx, p); err != nil {
		log.WithError(err).WithField("peer", p.Address).Warn("request_transactions failed")
		_ = c.peers.MarkInactive(p.Address)
		return
	}
	if err := c.requestHead(ctx, p); err != nil {
		log.WithError(err).WithField("peer", p.Address).Warn("request_head failed")
		_ = c.peers.MarkInactive(p.Address)
		return
	}
	_ = c.peers.MarkActive(p.Address)
}

type peerListResponse struct {
	Peers  []peer.Peer `json:"peers"`
	PeerID string      `json:"peer_id"`
}

// requestPeers fetches p's known peers, merges the unknown ones into our
// own list (skipping our own id), and if we advertise ourselves and p
// doesn't already list us, pushes our address to it.
func (c *Client) requestPeers(ctx context.Context, p peer.Peer) error {
	var resp peerListResponse
	if err := c.getJSON(ctx, p, "/peer", &resp); err != nil {
		return err
	}

	weAreListed := false
	for _, known := range resp.Peers {
		if known.PeerID == c.cfg.SelfPeerID {
			weAreListed = true
			continue
		}
		if err := c.peers.Add(known); err != nil {
			return fmt.Errorf("sync: merge peer %s: %w", known.Address, err)
		}
	}

	if c.cfg.Advertize && !weAreListed {
		body := struct {
			Peers []peer.Peer `json:"peers"`
		}{Peers: []peer.Peer{{Address: c.cfg.AdvertizeAddr, PeerID: c.cfg.SelfPeerID}}}
		return c.postJSON(ctx, p, "/peer", body, nil)
	}
	return nil
}

type transactionListResponse struct {
	Transactions []block.SignedTransaction `json:"transactions"`
}

// requestTransactions fetches p's mempool and admits any transaction we
// don't already have. Invalid transactions are logged, not propagated as
// an error, since one bad transaction from a peer shouldn't abort the
// rest of the sync cycle.
func (c *Client) requestTransactions(ctx context.Context, p peer.Peer) error {
	var resp transactionListResponse
	if err := c.getJSON(ctx, p, "/transaction", &resp); err != nil {
		return err
	}

	ours, err := c.engine.MempoolTransactions()
	if err != nil {
		return fmt.Errorf("sync: list local mempool: %w", err)
	}
	have := make(map[primitives.Hash]bool, len(ours))
	for _, st := range ours {
		h, err := st.Hash()
		if err != nil {
			continue
		}
		have[h] = true
	}

	for _, st := range resp.Transactions {
		h, err := st.Hash()
		if err != nil {
			continue
		}
		if have[h] {
			continue
		}
		if err := c.engine.AddOutstandingTransaction(st); err != nil {
			log.WithError(err).WithField("peer", p.Address).Info("peer offered an invalid transaction")
		}
	}
	return nil
}

// requestHead fetches p's chain head and, if that block is not stored
// locally, walks
// backward to find a known ancestor then forward via BFS to pull every
// missing descendant block, feeding each one to the chain engine.
func (c *Client) requestHead(ctx context.Context, p peer.Peer) error {
	var headResp struct {
		Height   uint64          `json:"height"`
		HeadHash primitives.Hash `json:"head_hash"`
	}
	if err := c.getJSON(ctx, p, "/chain", &headResp); err != nil {
		return err
	}

	if _, err := c.engine.BlockByHash(headResp.HeadHash); err == nil {
		return nil
	}

	anchor, err := c.walkBackward(ctx, p, headResp.HeadHash)
	if err != nil {
		return err
	}
	return c.walkForward(ctx, p, anchor)
}

// walkBackward fetches blocks starting at hash and following parent_hash
// until it reaches one we already have (or genesis), then applies the
// fetched chain oldest-first so each block's parent is already stored by
// the time it is added. It returns the hash of the newest applied block.
func (c *Client) walkBackward(ctx context.Context, p peer.Peer, hash primitives.Hash) (primitives.Hash, error) {
	var chainBack []block.HashedBlock

	cur := hash
	for {
		if _, err := c.engine.BlockByHash(cur); err == nil {
			break
		}

		var resp block.HashedBlock
		if err := c.getJSON(ctx, p, "/block?hex_hash="+cur.Hex(), &resp); err != nil {
			return primitives.Hash{}, err
		}
		chainBack = append(chainBack, resp)
		if resp.Block.ParentHash.IsZero() {
			break
		}
		cur = resp.Block.ParentHash
	}

	anchor := cur
	for i := len(chainBack) - 1; i >= 0; i-- {
		hb := chainBack[i]
		if err := c.engine.AddBlock(hb); err != nil {
			log.WithError(err).WithField("peer", p.Address).Info("peer offered an invalid block during backward walk")
			return primitives.Hash{}, fmt.Errorf("sync: backward walk: %w", err)
		}
		anchor = hb.Hash
	}
	return anchor, nil
}

type blockListResponse struct {
	Blocks []block.HashedBlock `json:"blocks"`
}

// walkForward performs a breadth-first walk from anchor, pulling every
// successor generation via /block?parent_hex_hash= until no more
// successors are reported.
func (c *Client) walkForward(ctx context.Context, p peer.Peer, anchor primitives.Hash) error {
	frontier := []primitives.Hash{anchor}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]

		var resp blockListResponse
		if err := c.getJSON(ctx, p, "/block?parent_hex_hash="+next.Hex(), &resp); err != nil {
			return err
		}
		for _, hb := range resp.Blocks {
			if err := c.engine.AddBlock(hb); err != nil {
				log.WithError(err).WithField("peer", p.Address).Info("peer offered an invalid block during forward walk")
				return fmt.Errorf("sync: forward walk: %w", err)
			}
			frontier = append(frontier, hb.Hash)
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, p peer.Peer, path string, out interface{}) error {
	url := "http://" + p.Address + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("sync: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sync: request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync: %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, p peer.Peer, path string, in interface{}, out interface{}) error {
	url := "http://" + p.Address + path
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("sync: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sync: request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync: %s returned status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
