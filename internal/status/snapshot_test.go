package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nvcrypt/internal/fault"
)

func TestErrorCode(t *testing.T) {
	require.Equal(t, CodeNone, ErrorCode(nil))
	require.Equal(t, CodeUnknown, ErrorCode(errors.New("plain")))
	require.Equal(t, uint16(1), ErrorCode(fault.Hardware("init", nil)))
	require.Equal(t, uint16(2), ErrorCode(fmt.Errorf("store: %w", fault.Transfer("read", nil))))
	require.Equal(t, uint16(3), ErrorCode(fault.Logic("encrypt", nil)))
}

func TestSnapshotFields(t *testing.T) {
	ok := Snapshot{Health: HealthOK, State: "idle", Cycles: 3}
	f := ok.Fields()
	require.Equal(t, uint64(3), f["cycles"])
	require.NotContains(t, f, "fault_code")

	bad := Snapshot{Health: HealthFault, State: "writing", LastFaultCode: 2, LastFault: "transfer fault: flash write"}
	f = bad.Fields()
	require.Equal(t, uint16(2), f["fault_code"])
	require.Equal(t, "transfer fault: flash write", f["fault"])
}
