// internal/status/snapshot.go
package status

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Snapshot is the diagnostic view of a store controller.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health        uint16
	State         string
	LastFaultCode uint16
	LastFault     string
	Cycles        uint64
}

// Fields renders the snapshot for structured logs.
func (s Snapshot) Fields() logrus.Fields {
	f := logrus.Fields{
		"health": s.Health,
		"state":  s.State,
		"cycles": s.Cycles,
	}
	if s.LastFaultCode != CodeNone {
		f["fault_code"] = s.LastFaultCode
		f["fault"] = s.LastFault
	}
	return f
}

// ErrorCode extracts a best-effort uint16 code from an error without
// assuming concrete types. Errors without a code map to CodeUnknown.
func ErrorCode(err error) uint16 {
	if err == nil {
		return CodeNone
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeUnknown
}
