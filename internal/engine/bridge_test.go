package engine

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine writes a shell script standing in for the external solver and
// returns its path.
func fakeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func testOptions() Options {
	return Options{
		ReadyTimeout:  500 * time.Millisecond,
		AcceptTimeout: 2 * time.Second,
		InputWait:     200 * time.Millisecond,
		OutputWait:    time.Second,
		Grace:         300 * time.Millisecond,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

const answeringEngine = `echo "engine> "
read program
echo "Please provide input"
while true; do
  echo "i1"
  read line || exit 0
  echo "o1[0] := #x32"
done
`

func TestBridgeComputeSingleInput(t *testing.T) {
	b, err := New(fakeEngine(t, answeringEngine), "always o1 := #x32", testOptions())
	require.NoError(t, err)
	defer b.Close()

	require.True(t, b.Valid())
	assert.Equal(t, PhaseReady, b.Phase())

	for i := 0; i < 3; i++ {
		got, ok := b.Compute(0.5, 0.37)
		require.True(t, ok, "call %d", i)
		assert.InDelta(t, 5.0, got, 1e-9)
	}
}

func TestBridgeComputeTwoInputs(t *testing.T) {
	// Echoes the first input back as the decision.
	script := `echo "engine> "
read program
echo "Execution step 0"
while true; do
  echo "i1"
  read a || exit 0
  echo "i2"
  read b || exit 0
  echo "o1[0] := $a"
done
`
	opts := testOptions()
	opts.Inputs = 2
	b, err := New(fakeEngine(t, script), "dynamic target program", opts)
	require.NoError(t, err)
	defer b.Close()
	require.True(t, b.Valid())

	got, ok := b.Compute(0.8, 0.33)
	require.True(t, ok)
	// 0.33 scaled in is #x21 = 33; divided back out by 10.
	assert.InDelta(t, 3.3, got, 1e-9)
}

func TestBridgeSpawnFailure(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing-engine"), "program", testOptions())
	require.Error(t, err)
}

func TestBridgeRejectedProgram(t *testing.T) {
	script := `read program
echo "Error: syntax"
sleep 5
`
	opts := testOptions()
	opts.ReadyTimeout = 100 * time.Millisecond
	opts.AcceptTimeout = 300 * time.Millisecond
	b, err := New(fakeEngine(t, script), "malformed program", opts)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, PhaseRejected, b.Phase())
	assert.False(t, b.Valid())

	_, ok := b.Compute(0.5, 0.4)
	assert.False(t, ok)
}

func TestBridgeProcessDiesMidSession(t *testing.T) {
	script := `echo "engine> "
read program
echo "Please provide input"
read a
exit 0
`
	b, err := New(fakeEngine(t, script), "program", testOptions())
	require.NoError(t, err)
	defer b.Close()
	require.True(t, b.Valid())

	_, ok := b.Compute(0.5, 0.4)
	assert.False(t, ok, "first call rides into the exit")

	// Permanently dead from here on, and cheap to ask.
	for i := 0; i < 3; i++ {
		_, ok = b.Compute(0.5, 0.4)
		assert.False(t, ok)
	}
	assert.False(t, b.Valid())
}

func TestBridgeSilentOutputTimesOut(t *testing.T) {
	script := `echo "engine> "
read program
echo "Please provide input"
while true; do
  read a || exit 0
done
`
	opts := testOptions()
	opts.OutputWait = 200 * time.Millisecond
	b, err := New(fakeEngine(t, script), "program", opts)
	require.NoError(t, err)
	defer b.Close()

	start := time.Now()
	_, ok := b.Compute(0.5, 0.4)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	// A timeout is not death: the engine may still answer next step.
	assert.True(t, b.Valid())
}

func TestBridgeUnparsableOutput(t *testing.T) {
	script := `echo "engine> "
read program
echo "Please provide input"
while true; do
  read a || exit 0
  echo "o1[0] := zzz"
done
`
	opts := testOptions()
	opts.OutputWait = 200 * time.Millisecond
	b, err := New(fakeEngine(t, script), "program", opts)
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.Compute(0.5, 0.4)
	assert.False(t, ok)
}

func TestBridgeCloseBoundedWhenQuitIgnored(t *testing.T) {
	script := `echo "engine> "
read program
echo "Please provide input"
exec sleep 30
`
	b, err := New(fakeEngine(t, script), "program", testOptions())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, b.Close())
	assert.Less(t, time.Since(start), 2*time.Second, "close must not hang past the grace period")
	assert.Equal(t, PhaseClosed, b.Phase())

	// Idempotent.
	require.NoError(t, b.Close())
}

func TestBridgeCloseKeepsTrailingOutput(t *testing.T) {
	// Answers the quit token with a large burst and exits immediately. The
	// burst is still crossing the pipe when the process dies; the recorder
	// must hold all of it, down to the last line.
	script := `echo "engine> "
read program
echo "Please provide input"
read token
seq 1 2000
echo "shutdown complete"
`
	opts := testOptions()
	opts.Grace = 2 * time.Second
	b, err := New(fakeEngine(t, script), "program", opts)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	var received strings.Builder
	for _, e := range b.Recorder().Entries() {
		if e.Dir == DirReceived {
			received.WriteString(e.Text)
		}
	}
	assert.Contains(t, received.String(), "\n2000\n", "middle of the burst recorded")
	assert.Contains(t, received.String(), "shutdown complete", "last line before exit recorded")
}

func TestOptionsPadShortMarkerList(t *testing.T) {
	opts := Options{Inputs: 2, InputMarkers: []string{"in:"}}
	opts.withDefaults()

	require.Len(t, opts.InputMarkers, 2)
	assert.Equal(t, "in:", opts.InputMarkers[0])
	assert.Equal(t, "i2", opts.InputMarkers[1])
}

func TestBridgeFlightRecorder(t *testing.T) {
	b, err := New(fakeEngine(t, answeringEngine), "the program text", testOptions())
	require.NoError(t, err)
	b.Compute(0.5, 0.37)
	require.NoError(t, b.Close())

	entries := b.Recorder().Entries()
	require.NotEmpty(t, entries)

	var sent, received strings.Builder
	for _, e := range entries {
		switch e.Dir {
		case DirSent:
			sent.WriteString(e.Text)
		case DirReceived:
			received.WriteString(e.Text)
		}
	}
	// Received text is checked on the concatenation so fragment boundaries
	// don't matter.
	assert.Contains(t, sent.String(), "the program text\n", "program bytes recorded")
	assert.Contains(t, sent.String(), "#x25\n", "encoded input recorded")
	assert.Contains(t, received.String(), "o1[0] := #x32", "engine output recorded")

	transcript := b.Recorder().Transcript()
	assert.Contains(t, transcript, "TX")
	assert.Contains(t, transcript, "RX")
	assert.Contains(t, transcript, "closed")
}
