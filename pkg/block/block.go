// Package block defines the wire and storage representation of
// transactions and blocks: canonical hashing, the proof-of-work mining
// hash, and the structural validity checks that don't require chain state
// (signature checks, reward-shape checks, hash linkage).
package block

import (
	"crypto/sha256"
	"fmt"

	"github.com/gochain/radcoin/internal/primitives"
)

// RewardAmount is the fixed coinbase reward paid to the miner of a block.
var RewardAmount = primitives.NewAmount(100)

// TransactionInput references a single unclaimed output of a prior
// transaction that this transaction consumes.
type TransactionInput struct {
	TransactionHash primitives.Hash `json:"transaction_hash"`
	OutputIndex     uint32          `json:"output_index"`
}

// TransactionOutput credits Amount to Address; it becomes spendable once
// the containing transaction is confirmed in a block on the main chain.
type TransactionOutput struct {
	Address primitives.Address `json:"address"`
	Amount  primitives.Amount  `json:"amount"`
}

// Transaction is the unsigned body of a transfer: zero or more inputs being
// spent and one or more outputs being created. A reward transaction has
// zero inputs and exactly one output.
type Transaction struct {
	Inputs  []TransactionInput  `json:"inputs"`
	Outputs []TransactionOutput `json:"outputs"`
}

// Hash returns the canonical hash of the transaction body. This is the
// value signed over and the value used as TransactionInput.TransactionHash
// by downstream spends.
func (t Transaction) Hash() (primitives.Hash, error) {
	return primitives.HashOf(t)
}

// IsReward reports whether t has the shape of a coinbase reward
// transaction: no inputs, exactly one output.
func (t Transaction) IsReward() bool {
	return len(t.Inputs) == 0 && len(t.Outputs) == 1
}

// SignedTransaction pairs a Transaction with the signer's address and their
// signature over the transaction's canonical hash. A transaction with zero
// inputs (a reward) carries a zero Signer/Signature; it is authorized by
// its position in the block, not by a signature.
type SignedTransaction struct {
	Transaction Transaction         `json:"transaction"`
	Signer      primitives.Address  `json:"signer"`
	Signature   primitives.Signature `json:"signature"`
}

// Hash returns the canonical hash of the signed transaction as a whole.
// This is the identifier clients use to look transactions up (the mempool
// is keyed by it). TransactionInput references the inner Transaction hash,
// not this one — see Transaction.Hash.
func (st SignedTransaction) Hash() (primitives.Hash, error) {
	return primitives.HashOf(st)
}

// VerifySignature checks that Signature is a valid ed25519 signature by
// Signer over the canonical hash of Transaction. Reward transactions
// (IsReward) are exempt and always verify.
func (st SignedTransaction) VerifySignature() error {
	if st.Transaction.IsReward() {
		return nil
	}
	txHash, err := st.Transaction.Hash()
	if err != nil {
		return fmt.Errorf("block: hash transaction: %w", err)
	}
	if !primitives.Verify(st.Signer, txHash.Bytes(), st.Signature) {
		return fmt.Errorf("block: %w", ErrBadSignature)
	}
	return nil
}

// Block is the unhashed body of a block: its parent linkage, the
// difficulty target it was mined against, and its transaction set (the
// first of which must be the block's reward transaction).
type Block struct {
	ParentHash     primitives.Hash     `json:"parent_hash"`
	BlockNum       uint64              `json:"block_num"`
	Difficulty     uint8               `json:"difficulty"`
	Timestamp      primitives.Timestamp `json:"timestamp"`
	Transactions   []SignedTransaction `json:"transactions"`
	MiningEntropy  []byte              `json:"mining_entropy"`
}

// Hash returns the canonical hash of the block body, used for equality and
// storage keys of the block record itself (distinct from MiningHash, which
// is the proof-of-work target value).
func (b Block) Hash() (primitives.Hash, error) {
	return primitives.HashOf(b)
}

// MiningHash returns SHA256(SHA256(canonical(b)) || MiningEntropy), the
// value a miner searches for a MiningEntropy that drives below the
// block's difficulty target.
func (b Block) MiningHash() (primitives.Hash, error) {
	canon, err := primitives.Canonical(b)
	if err != nil {
		return primitives.Hash{}, fmt.Errorf("block: canonical encode: %w", err)
	}
	inner := primitives.HashBytes(canon)
	h := sha256.New()
	h.Write(inner[:])
	h.Write(b.MiningEntropy)
	var out primitives.Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// MeetsDifficulty reports whether hash has at least `difficulty` leading
// zero bits, the proof-of-work acceptance condition.
func MeetsDifficulty(hash primitives.Hash, difficulty uint8) bool {
	need := int(difficulty)
	for _, b := range hash {
		if need >= 8 {
			if b != 0 {
				return false
			}
			need -= 8
			continue
		}
		if need == 0 {
			return true
		}
		mask := byte(0xFF << (8 - need))
		return b&mask == 0
	}
	return true
}

// GenesisBlock is the network's hardcoded block 0: no parent, no
// transactions, difficulty 0. Every node's genesis must be byte-identical
// to this constant — it is never mined or independently generated, since a
// network where each node invented its own genesis could never agree on a
// chain. MiningEntropy is nil and Timestamp is the zero value so the hash
// below is reproducible from source alone.
var GenesisBlock = Block{
	ParentHash: primitives.ZeroHash,
	BlockNum:   0,
	Difficulty: 0,
}

// GenesisHash is the hash of GenesisBlock, computed once at package init.
var GenesisHash = mustHash(GenesisBlock)

func mustHash(b Block) primitives.Hash {
	h, err := b.Hash()
	if err != nil {
		panic(fmt.Sprintf("block: genesis hash: %v", err))
	}
	return h
}

// Genesis returns the network's hardcoded genesis block paired with its
// hash, ready to submit to a fresh chain.Engine.
func Genesis() HashedBlock {
	return HashedBlock{Block: GenesisBlock, Hash: GenesisHash}
}

// HashedBlock is the wire form of a block: the body plus the hash the
// sender computed for it. Receivers recompute the hash and reject the
// block if it disagrees (see chain.Engine.AddBlock).
type HashedBlock struct {
	Block Block           `json:"block"`
	Hash  primitives.Hash `json:"hash"`
}

// RewardTransaction returns the block's coinbase transaction, which by
// convention is always transactions[0].
func (b Block) RewardTransaction() (SignedTransaction, bool) {
	if len(b.Transactions) == 0 {
		return SignedTransaction{}, false
	}
	return b.Transactions[0], true
}

// NonRewardTransactions returns every transaction in the block other than
// the leading reward transaction.
func (b Block) NonRewardTransactions() []SignedTransaction {
	if len(b.Transactions) <= 1 {
		return nil
	}
	return b.Transactions[1:]
}

// ValidateShape checks the structural invariants of a block that don't
// require chain state: exactly one leading reward transaction of the
// correct amount, and every other transaction non-empty and not itself
// reward-shaped. Genesis (BlockNum 0) is exempt from the reward-shape
// checks: it carries no transactions at all.
func (b Block) ValidateShape() error {
	if b.BlockNum == 0 {
		if len(b.Transactions) != 0 {
			return fmt.Errorf("block: %w: genesis must have no transactions", ErrInvalidBlock)
		}
		return nil
	}
	if len(b.Transactions) == 0 {
		return fmt.Errorf("block: %w: no transactions", ErrInvalidBlock)
	}
	reward, ok := b.RewardTransaction()
	if !ok || !reward.Transaction.IsReward() {
		return fmt.Errorf("block: %w: first transaction must be the reward", ErrInvalidBlock)
	}
	if len(reward.Transaction.Outputs) != 1 || !reward.Transaction.Outputs[0].Amount.Equal(RewardAmount) {
		return fmt.Errorf("block: %w: reward output must equal %s", ErrInvalidBlock, RewardAmount)
	}
	for i, st := range b.NonRewardTransactions() {
		if st.Transaction.IsReward() {
			return fmt.Errorf("block: %w: transaction %d looks like a second reward", ErrInvalidBlock, i+1)
		}
		if len(st.Transaction.Inputs) == 0 {
			return fmt.Errorf("block: %w: transaction %d has no inputs", ErrInvalidBlock, i+1)
		}
		if len(st.Transaction.Outputs) == 0 {
			return fmt.Errorf("block: %w: transaction %d has no outputs", ErrInvalidBlock, i+1)
		}
		if err := st.VerifySignature(); err != nil {
			return fmt.Errorf("block: transaction %d: %w", i+1, err)
		}
	}
	return nil
}
