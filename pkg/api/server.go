// Package api implements the node's HTTP+JSON wire protocol surface: the
// eight path/method routes peers and local tooling use to exchange blocks,
// transactions, and peer addresses. It is grounded on the teacher's
// pkg/api/server.go — a gorilla/mux router wrapping a chain interface,
// started with http.ListenAndServe — narrowed from Adrenochain's broad
// REST surface (dozens of /api/v1/... routes) down to exactly the eight
// routes the wire protocol specifies.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gochain/radcoin/internal/logging"
	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
	"github.com/gochain/radcoin/pkg/chain"
	"github.com/gochain/radcoin/pkg/peer"
	"github.com/gochain/radcoin/pkg/storage"
)

var log = logging.Get("api")

// Server exposes the node's chain engine and peer list over HTTP.
type Server struct {
	engine     *chain.Engine
	peers      *peer.List
	selfPeerID string
	http       *http.Server
}

// New builds a Server listening on addr. selfPeerID is this node's own
// 256-bit hex identifier, reported back to callers of GET /peer so they
// can recognize and skip gossiping it back to us.
func New(engine *chain.Engine, peers *peer.List, selfPeerID, addr string) *Server {
	s := &Server{engine: engine, peers: peers, selfPeerID: selfPeerID}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/block", s.handleGetBlock).Methods(http.MethodGet)
	r.HandleFunc("/block", s.handlePostBlock).Methods(http.MethodPost)
	r.HandleFunc("/transaction", s.handleGetTransactions).Methods(http.MethodGet)
	r.HandleFunc("/transaction", s.handlePostTransaction).Methods(http.MethodPost)
	r.HandleFunc("/peer", s.handleGetPeers).Methods(http.MethodGet)
	r.HandleFunc("/peer", s.handlePostPeer).Methods(http.MethodPost)
	r.HandleFunc("/chain", s.handleGetChain).Methods(http.MethodGet)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler returns the server's HTTP handler, for tests that want to drive
// it with httptest rather than binding a real socket.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run starts serving until ctx is cancelled, as its own goroutine sharing
// only the durable chain engine and peer store with the miner and sync
// client.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.http.Addr).Info("api server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.http.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	}
}

// handleRoot serves as the RPC directory: a quick human-readable summary
// of the routes this node exposes.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":   "radcoin",
		"routes": []string{"/block", "/transaction", "/peer", "/chain"},
	})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if hexHash := q.Get("hex_hash"); hexHash != "" {
		hash, err := primitives.HashFromHex(hexHash)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		rec, err := s.engine.BlockByHash(hash)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, block.HashedBlock{Block: rec.Block, Hash: rec.Hash})
		return
	}

	if blockNumStr := q.Get("block_num"); blockNumStr != "" {
		n, err := strconv.ParseUint(blockNumStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("api: invalid block_num: %w", err))
			return
		}
		rec, err := s.engine.BlockByNum(n)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, block.HashedBlock{Block: rec.Block, Hash: rec.Hash})
		return
	}

	if parentHex := q.Get("parent_hex_hash"); parentHex != "" {
		parentHash, err := primitives.HashFromHex(parentHex)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		recs, err := s.engine.BlocksByParentHash(parentHash)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		out := make([]block.HashedBlock, 0, len(recs))
		for _, rec := range recs {
			out = append(out, block.HashedBlock{Block: rec.Block, Hash: rec.Hash})
		}
		writeJSON(w, http.StatusOK, map[string][]block.HashedBlock{"blocks": out})
		return
	}

	writeError(w, http.StatusBadRequest, fmt.Errorf("api: one of hex_hash, block_num, parent_hex_hash is required"))
}

func (s *Server) handlePostBlock(w http.ResponseWriter, r *http.Request) {
	var hb block.HashedBlock
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.AddBlock(hb); err != nil {
		writeValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "accepted"})
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.engine.MempoolTransactions()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if txs == nil {
		txs = []block.SignedTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string][]block.SignedTransaction{"transactions": txs})
}

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var tx block.SignedTransaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.AddOutstandingTransaction(tx); err != nil {
		writeValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "accepted"})
}

func (s *Server) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	active, err := s.peers.AllActive()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if active == nil {
		active = []peer.Peer{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"peers": active, "peer_id": s.selfPeerID})
}

type postPeerRequest struct {
	Peers []peer.Peer `json:"peers"`
}

func (s *Server) handlePostPeer(w http.ResponseWriter, r *http.Request) {
	var req postPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, p := range req.Peers {
		if p.Address == "" || p.PeerID == s.selfPeerID {
			continue
		}
		if err := s.peers.Add(p); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "accepted"})
}

type chainResponse struct {
	Height   uint64          `json:"height"`
	HeadHash primitives.Hash `json:"head_hash"`
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	head, ok, err := s.engine.Head()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("api: no genesis block yet"))
		return
	}
	writeJSON(w, http.StatusOK, chainResponse{Height: head.Block.BlockNum, HeadHash: head.Hash})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeValidationError maps the chain package's error taxonomy onto HTTP
// status codes: malformed input is a client error, unexpected storage
// failure is a server error.
func writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chain.ErrInvalidBlock),
		errors.Is(err, chain.ErrInvalidTransaction),
		errors.Is(err, chain.ErrUnknownParent),
		errors.Is(err, chain.ErrDifficultyMismatch),
		errors.Is(err, chain.ErrDuplicateGenesis),
		errors.Is(err, chain.ErrMissingGenesis),
		errors.Is(err, block.ErrInvalidBlock),
		errors.Is(err, block.ErrBadSignature):
		writeError(w, http.StatusBadRequest, err)
	default:
		log.WithError(err).Error("unexpected error handling request")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	log.WithError(err).Error("store error handling request")
	writeError(w, http.StatusInternalServerError, err)
}
