// internal/fault/fault.go
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fault. Every kind is terminal for a store cycle:
// there is no recoverable path, only a clean report before halting.
type Kind uint8

const (
	// KindHardware: storage or cipher engine unavailable or misconfigured.
	KindHardware Kind = iota + 1

	// KindTransfer: a read or write did not complete for the requested window.
	KindTransfer

	// KindLogic: the caller handed over a buffer the contract forbids.
	KindLogic
)

func (k Kind) String() string {
	switch k {
	case KindHardware:
		return "hardware"
	case KindTransfer:
		return "transfer"
	case KindLogic:
		return "logic"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Fault is the single error variant carried out of the core.
type Fault struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s fault: %s", f.Kind, f.Op)
	}
	return fmt.Sprintf("%s fault: %s: %v", f.Kind, f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Code is the numeric diagnostic code of the fault (1..3, 0 never used).
func (f *Fault) Code() uint16 { return uint16(f.Kind) }

func Hardware(op string, err error) error {
	return &Fault{Kind: KindHardware, Op: op, Err: err}
}

func Transfer(op string, err error) error {
	return &Fault{Kind: KindTransfer, Op: op, Err: err}
}

func Logic(op string, err error) error {
	return &Fault{Kind: KindLogic, Op: op, Err: err}
}

// KindOf reports the kind of the first Fault in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// Is reports whether err carries a Fault of kind k.
func Is(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
