package chain

import (
	"errors"
	"fmt"
)

// Error taxonomy for block and transaction validation. Subtypes are
// wrapped with their parent category (e.g. ErrUnknownParent wraps
// ErrInvalidBlock) so callers can match at whichever granularity they
// need with errors.Is.
var (
	// ErrInvalidBlock is the root error for structurally or
	// contextually invalid blocks.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrInvalidTransaction is the root error for transactions that
	// cannot be admitted to the mempool or a block.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrUnknownParent indicates a block's parent_hash does not match
	// any block this node has stored.
	ErrUnknownParent = fmt.Errorf("%w: unknown parent block", ErrInvalidBlock)

	// ErrDifficultyMismatch indicates a block's declared difficulty does
	// not match what the retargeting rule requires at that height.
	ErrDifficultyMismatch = fmt.Errorf("%w: difficulty mismatch", ErrInvalidBlock)

	// ErrDuplicateGenesis indicates a genesis block was submitted after
	// this node already has one.
	ErrDuplicateGenesis = errors.New("genesis block already exists")

	// ErrMissingGenesis indicates a non-genesis block was submitted
	// before this node has accepted any genesis block.
	ErrMissingGenesis = errors.New("no genesis block yet")
)
