package statespace

import (
	"errors"
	"fmt"
)

var (
	// ErrReorgDepthExceeded is returned when a reorganization reaches past
	// the oldest retained snapshot. The mirror cannot rewind further and
	// must be reseeded.
	ErrReorgDepthExceeded = errors.New("reorg exceeds retained snapshot depth")

	// ErrStalled is returned when the manager is asked to process blocks
	// while fatally stalled. Resync is the only way out of this state.
	ErrStalled = errors.New("manager is stalled and requires a resync")
)

// ProviderError wraps a failure of the chain provider, naming the operation
// that failed so callers can distinguish transient RPC trouble from local
// state corruption.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
