package block

import "errors"

// ErrInvalidBlock is the root error for structurally malformed blocks.
var ErrInvalidBlock = errors.New("invalid block")

// ErrBadSignature indicates a transaction's signature does not verify
// against its claimed signer.
var ErrBadSignature = errors.New("bad signature")
