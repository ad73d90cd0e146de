// internal/store/types.go
package store

import (
	"fmt"
	"time"
)

// Block is one plaintext parameter block.
type Block []byte

// Clone returns an independent copy.
func (b Block) Clone() Block {
	if b == nil {
		return nil
	}
	return append(Block(nil), b...)
}

// Transform maps the current plaintext to the next one.
// It receives a private copy and must return a block of the same length.
type Transform func(Block) Block

// IVPolicy selects how the initialization vector is chosen per write.
type IVPolicy uint8

const (
	// IVFixed reuses the configured IV for every write; the region holds
	// only the ciphertext.
	IVFixed IVPolicy = iota

	// IVPerWrite draws a fresh IV for every write and stores it in the
	// 16 bytes in front of the ciphertext.
	IVPerWrite
)

// ParseIVPolicy maps the config spelling to a policy.
func ParseIVPolicy(s string) (IVPolicy, error) {
	switch s {
	case "", "fixed":
		return IVFixed, nil
	case "per_write":
		return IVPerWrite, nil
	default:
		return 0, fmt.Errorf("store: unknown iv policy %q", s)
	}
}

// State is the controller pipeline stage.
type State uint16

const (
	StateIdle State = iota
	StateReading
	StateDecrypting
	StateTransforming
	StateEncrypting
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDecrypting:
		return "decrypting"
	case StateTransforming:
		return "transforming"
	case StateEncrypting:
		return "encrypting"
	case StateWriting:
		return "writing"
	default:
		return fmt.Sprintf("state(%d)", uint16(s))
	}
}

// CycleResult is produced by one load/transform/store cycle.
type CycleResult struct {
	Cycle  int
	At     time.Time
	Before Block
	After  Block
	Err    error // non-nil means the cycle failed
}
