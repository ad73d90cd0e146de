package main

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nvcrypt/internal/config"
	"github.com/tamzrod/nvcrypt/internal/store"
)

func TestPrintBlock(t *testing.T) {
	var buf bytes.Buffer
	printBlock(&buf, store.Block{0, 1, 255}, false)
	require.Equal(t, "0 1 255\n", buf.String())

	buf.Reset()
	printBlock(&buf, store.Block{0xDE, 0xAD}, true)
	require.Contains(t, buf.String(), "de ad")
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, log.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	_, err = newLogger(config.LogConfig{Level: "loud"})
	require.Error(t, err)
}

func TestFillThenShow(t *testing.T) {
	var out bytes.Buffer
	a := &app{opts: &options{}, out: &out}

	fill := &fillCommand{app: a, Value: 3}
	require.NoError(t, fill.Execute(nil))

	// memory media survives Close, so the same controller reads it back
	block, err := a.ctrl.Load()
	require.NoError(t, err)
	printBlock(&out, block, false)
	require.Contains(t, out.String(), "3 3 3")
}

func parseLine(t *testing.T, line string) []int {
	t.Helper()
	fields := strings.Fields(line)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		require.NoError(t, err)
		out[i] = v
	}
	return out
}

func TestCycle_PrintsThenIncrements(t *testing.T) {
	var out bytes.Buffer
	a := &app{opts: &options{}, out: &out}

	cycle := &cycleCommand{app: a, Step: 1, Count: 2}
	require.NoError(t, cycle.Execute(nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	first, second := parseLine(t, lines[0]), parseLine(t, lines[1])
	require.Len(t, first, config.Default().Store.Length)
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, (first[i]+1)%256, second[i], "byte %d", i)
	}
}

func TestShowRaw_PrintsFingerprintAndIV(t *testing.T) {
	var out bytes.Buffer
	a := &app{opts: &options{}, out: &out}

	show := &showCommand{app: a, Raw: true}
	require.NoError(t, show.Execute(nil))

	text := out.String()
	zero := make([]byte, config.Default().Store.Length)
	require.Contains(t, text, "fingerprint "+store.Fingerprint(zero))
	require.Contains(t, text, "iv "+config.ReferenceIV)
}

func TestSet_PatchesLoadedBlock(t *testing.T) {
	var out bytes.Buffer
	a := &app{opts: &options{}, out: &out}

	set := &setCommand{app: a, Offset: 2, Data: "0a:0b"}
	require.NoError(t, set.Execute(nil))

	block, err := a.ctrl.Load()
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x0b}, []byte(block[2:4]))

	bad := &setCommand{app: &app{opts: &options{}, out: &out}, Data: "zz"}
	require.Error(t, bad.Execute(nil))
}
