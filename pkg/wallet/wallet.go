// Package wallet provides the minimal key-management and transaction
// construction a node operator needs to run a miner and move funds: an
// ed25519 identity persisted to disk, and helpers to build signed spends.
// Wallet key storage and transaction construction are listed as an
// external collaborator's concern, not the node's — the teacher's much
// larger wallet.go (encrypted key files, a CLI subcommand surface,
// ECDSA/Base58Check addresses) is deliberately not reproduced; see
// DESIGN.md.
package wallet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gochain/radcoin/internal/primitives"
	"github.com/gochain/radcoin/pkg/block"
)

// Wallet holds a single ed25519 signing identity.
type Wallet struct {
	KeyPair *primitives.KeyPair
}

// New generates a fresh wallet.
func New() (*Wallet, error) {
	kp, err := primitives.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("wallet: generate: %w", err)
	}
	return &Wallet{KeyPair: kp}, nil
}

// Address returns the wallet's address.
func (w *Wallet) Address() primitives.Address { return w.KeyPair.Address() }

type fileFormat struct {
	SeedHex string `json:"seed_hex"`
}

// Save writes the wallet's private seed to path in JSON form. The caller
// is responsible for restricting the file's permissions; Save itself
// creates the file with owner-only read/write.
func Save(w *Wallet, path string) error {
	data, err := json.Marshal(fileFormat{SeedHex: fmt.Sprintf("%x", w.KeyPair.Seed())})
	if err != nil {
		return fmt.Errorf("wallet: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("wallet: write %s: %w", path, err)
	}
	return nil
}

// Load reads a wallet previously written by Save.
func Load(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read %s: %w", path, err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("wallet: unmarshal %s: %w", path, err)
	}
	seed, err := hex.DecodeString(ff.SeedHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode seed in %s: %w", path, err)
	}
	kp, err := primitives.KeyPairFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("wallet: rebuild keypair: %w", err)
	}
	return &Wallet{KeyPair: kp}, nil
}

// LoadOrCreate loads the wallet at path, creating and saving a new one if
// it does not yet exist.
func LoadOrCreate(path string) (*Wallet, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("wallet: stat %s: %w", path, err)
	}
	w, err := New()
	if err != nil {
		return nil, err
	}
	if err := Save(w, path); err != nil {
		return nil, err
	}
	return w, nil
}

// BuildTransfer constructs and signs a transaction spending in (an output
// owned by this wallet) to the given recipients. The caller supplies the
// exact inputs to spend; BuildTransfer does not consult chain state.
func (w *Wallet) BuildTransfer(inputs []block.TransactionInput, outputs []block.TransactionOutput) (block.SignedTransaction, error) {
	if len(inputs) == 0 {
		return block.SignedTransaction{}, fmt.Errorf("wallet: transfer needs at least one input")
	}
	if len(outputs) == 0 {
		return block.SignedTransaction{}, fmt.Errorf("wallet: transfer needs at least one output")
	}
	tx := block.Transaction{Inputs: inputs, Outputs: outputs}
	hash, err := tx.Hash()
	if err != nil {
		return block.SignedTransaction{}, fmt.Errorf("wallet: hash transaction: %w", err)
	}
	return block.SignedTransaction{
		Transaction: tx,
		Signer:      w.Address(),
		Signature:   w.KeyPair.Sign(hash.Bytes()),
	}, nil
}
