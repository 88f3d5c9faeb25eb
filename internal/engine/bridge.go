package engine

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arvel-h/pumplab/internal/sim"
)

// Phase is the bridge lifecycle state. Transitions are driven by marker
// matches on the engine's output, never by fixed sleeps.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseLaunching
	PhaseHandshaking
	PhaseSendingProgram
	PhaseAwaitingAccept
	PhaseReady
	PhaseRejected
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseLaunching:
		return "launching"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseSendingProgram:
		return "sending_program"
	case PhaseAwaitingAccept:
		return "awaiting_accept"
	case PhaseReady:
		return "ready"
	case PhaseRejected:
		return "rejected"
	case PhaseClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Options configure one bridge session. Marker strings default to the
// engine REPL's actual prompts; tests and exotic engine builds can override
// them.
type Options struct {
	// Inputs is the number of values sent per compute call: 1 sends the
	// measurement only, 2 sends measurement then target.
	Inputs int

	// ReadyMarker is awaited right after launch; missing it is only a
	// warning. AcceptMarker decides whether the program was taken.
	ReadyMarker  string
	AcceptMarker string
	InputMarkers []string
	OutputMarker string
	QuitToken    string

	ReadyTimeout  time.Duration
	AcceptTimeout time.Duration
	InputWait     time.Duration
	OutputWait    time.Duration
	Grace         time.Duration

	Logger *slog.Logger
}

func (o *Options) withDefaults() {
	if o.Inputs < 1 {
		o.Inputs = 1
	}
	if o.ReadyMarker == "" {
		o.ReadyMarker = ">"
	}
	if o.AcceptMarker == "" {
		o.AcceptMarker = "Execution step|Please provide"
	}
	if len(o.InputMarkers) == 0 {
		o.InputMarkers = []string{"i1", "i2"}
	}
	// A partial override must still cover every input slot.
	for len(o.InputMarkers) < o.Inputs {
		o.InputMarkers = append(o.InputMarkers, fmt.Sprintf("i%d", len(o.InputMarkers)+1))
	}
	if o.OutputMarker == "" {
		o.OutputMarker = "o1"
	}
	if o.QuitToken == "" {
		o.QuitToken = "q"
	}
	if o.ReadyTimeout == 0 {
		o.ReadyTimeout = 5 * time.Second
	}
	if o.AcceptTimeout == 0 {
		o.AcceptTimeout = 10 * time.Second
	}
	if o.InputWait == 0 {
		o.InputWait = time.Second
	}
	if o.OutputWait == 0 {
		o.OutputWait = 500 * time.Millisecond
	}
	if o.Grace == 0 {
		o.Grace = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Bridge presents the Controller capability while the decision logic runs
// in an external process reached over line-oriented stdio. All protocol
// failures degrade to "no result"; only a failed spawn is surfaced as an
// error.
//
// Exactly one background goroutine per output stream feeds the fragment
// channel; the caller's goroutine is the sole consumer. Compute and Close
// must not race with each other beyond the final shutdown handoff the loop
// performs.
type Bridge struct {
	opts Options
	log  *slog.Logger
	rec  *Recorder

	cmd   *exec.Cmd
	stdin io.WriteCloser

	frags chan string
	buf   string
	eof   bool

	valid atomic.Bool
	dead  atomic.Bool
	phase atomic.Int32

	closeOnce sync.Once
	readers   sync.WaitGroup
}

// New launches the engine executable, performs the handshake and submits
// the decision program. A spawn failure is returned as an error; a rejected
// program or a silent engine leaves the bridge in the Rejected phase, where
// every Compute call reports "no result".
func New(command string, program string, opts Options) (*Bridge, error) {
	opts.withDefaults()

	b := &Bridge{
		opts:  opts,
		log:   opts.Logger.With("component", "engine"),
		rec:   NewRecorder(),
		frags: make(chan string, 4096),
	}

	b.setPhase(PhaseLaunching)
	cmd := exec.Command(command)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch engine %q: %w", command, err)
	}
	b.cmd = cmd
	b.stdin = stdin
	b.rec.Notef("launched %s (pid %d)", command, cmd.Process.Pid)

	b.readers.Add(2)
	go b.readOutput(stdout)
	go b.readErrors(stderr)

	b.handshake(program)
	return b, nil
}

func (b *Bridge) handshake(program string) {
	b.setPhase(PhaseHandshaking)
	if !b.awaitPattern(b.opts.ReadyMarker, b.opts.ReadyTimeout) {
		b.log.Warn("ready prompt not observed, sending program anyway")
		b.rec.Notef("ready prompt not observed within %s", b.opts.ReadyTimeout)
	}

	b.setPhase(PhaseSendingProgram)
	if !b.send(program + "\n") {
		b.reject("program write failed")
		return
	}

	b.setPhase(PhaseAwaitingAccept)
	if !b.awaitPattern(b.opts.AcceptMarker, b.opts.AcceptTimeout) {
		b.reject("program not accepted before timeout")
		return
	}

	b.valid.Store(true)
	b.setPhase(PhaseReady)
	b.rec.Notef("program accepted")
	b.log.Info("engine ready")
}

func (b *Bridge) reject(reason string) {
	b.setPhase(PhaseRejected)
	b.rec.Notef("rejected: %s", reason)
	b.log.Error("engine rejected", "reason", reason)
}

// Compute implements sim.Controller. The measurement (and, for the
// two-input variant, the target) is encoded, written in fixed order, and
// the answer extracted from the engine's output under a bounded wait. Any
// timeout, parse failure or dead process yields (0, false) — never a panic
// or an error. The returned value is an absolute commanded amplitude.
func (b *Bridge) Compute(setpoint, measurement float64) (float64, bool) {
	if !b.valid.Load() || b.dead.Load() {
		return 0, false
	}

	inputs := []float64{measurement}
	if b.opts.Inputs >= 2 {
		inputs = append(inputs, setpoint)
	}

	for i, v := range inputs {
		// The prompt wait is advisory: a char-buffered engine may not
		// flush the prompt before reading, so we write regardless.
		b.awaitMarker(b.opts.InputMarkers[i], b.opts.InputWait)
		if !b.send(EncodeWire(v) + "\n") {
			return 0, false
		}
	}

	deadline := time.Now().Add(b.opts.OutputWait)
	for {
		clean := StripANSI(b.buf)
		if idx := strings.Index(clean, b.opts.OutputMarker); idx >= 0 {
			if n, end, ok := extractValue(clean[idx:]); ok {
				// Consume through the value; anything after it (the
				// next prompt, typically) stays for the next call.
				b.buf = clean[idx+end:]
				return float64(n) / OutputDivisor, true
			}
		}
		if !b.collect(deadline) {
			// Stale output must not satisfy the next step.
			b.buf = ""
			return 0, false
		}
	}
}

// Absolute reports that engine decisions replace the running command
// instead of adjusting it.
func (b *Bridge) Absolute() bool { return true }

// Close shuts the session down from any state: quit token, then the
// remaining output is drained into the flight recorder under a bounded
// grace period, with a hard kill when the engine does not exit in time.
// Safe to call more than once.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.valid.Store(false)
		defer b.setPhase(PhaseClosed)

		if b.cmd == nil || b.cmd.Process == nil {
			return
		}

		if !b.dead.Load() {
			b.send(b.opts.QuitToken + "\n")
		}
		_ = b.stdin.Close()

		// Drain to reader EOF before reaping. Wait closes the stdout pipe
		// once the process exits, so calling it while output is still in
		// flight would drop the tail of the transcript.
		grace := time.NewTimer(b.opts.Grace)
		defer grace.Stop()
		for open := true; open; {
			select {
			case frag, ok := <-b.frags:
				if !ok {
					open = false
					break
				}
				b.rec.Received(frag)
			case <-grace.C:
				b.rec.Notef("no exit within %s, killing", b.opts.Grace)
				_ = b.cmd.Process.Kill()
			}
		}
		b.readers.Wait()
		_ = b.cmd.Wait()
		b.rec.Notef("closed")
		b.log.Info("engine closed")
	})
	return nil
}

// Valid reports whether the engine accepted the program and has not died
// or been closed since.
func (b *Bridge) Valid() bool { return b.valid.Load() && !b.dead.Load() }

func (b *Bridge) Phase() Phase { return Phase(b.phase.Load()) }

// Recorder exposes the flight recorder; read it after Close for the full
// transcript.
func (b *Bridge) Recorder() *Recorder { return b.rec }

func (b *Bridge) setPhase(p Phase) { b.phase.Store(int32(p)) }

func (b *Bridge) send(text string) bool {
	if _, err := io.WriteString(b.stdin, text); err != nil {
		b.dead.Store(true)
		b.rec.Notef("write failed: %v", err)
		b.log.Warn("engine write failed", "err", err)
		return false
	}
	b.rec.Sent(text)
	return true
}

// collect blocks for at most the remaining deadline waiting for fragments,
// then drains everything already queued. Returns false when nothing new
// can arrive in time.
func (b *Bridge) collect(deadline time.Time) bool {
	if b.eof {
		return false
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	select {
	case frag, ok := <-b.frags:
		if !ok {
			b.markEOF()
			return false
		}
		b.ingest(frag)
	case <-time.After(remaining):
		return false
	}

	for {
		select {
		case frag, ok := <-b.frags:
			if !ok {
				b.markEOF()
				return true
			}
			b.ingest(frag)
		default:
			return true
		}
	}
}

func (b *Bridge) ingest(frag string) {
	b.buf += frag
	b.rec.Received(frag)
	// Bound the scan window on very chatty engines.
	if len(b.buf) > 1<<14 {
		b.buf = b.buf[len(b.buf)-1<<13:]
	}
}

func (b *Bridge) markEOF() {
	b.eof = true
	if !b.dead.Swap(true) {
		b.rec.Notef("output stream closed")
		b.log.Warn("engine output stream closed")
	}
}

// awaitMarker waits for a plain substring and consumes the buffer through
// it so the same prompt is not matched twice.
func (b *Bridge) awaitMarker(marker string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		clean := StripANSI(b.buf)
		if idx := strings.Index(clean, marker); idx >= 0 {
			b.buf = clean[idx+len(marker):]
			return true
		}
		if !b.collect(deadline) {
			return false
		}
	}
}

// awaitPattern waits for a regular expression match (handshake markers are
// alternations).
func (b *Bridge) awaitPattern(pattern string, timeout time.Duration) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		b.log.Error("bad marker pattern", "pattern", pattern, "err", err)
		return false
	}
	deadline := time.Now().Add(timeout)
	for {
		clean := StripANSI(b.buf)
		if loc := re.FindStringIndex(clean); loc != nil {
			b.buf = clean[loc[1]:]
			return true
		}
		if !b.collect(deadline) {
			return false
		}
	}
}

// readOutput pushes raw stdout fragments to the consumer channel in arrival
// order. It is the channel's only writer and closes it on stream end.
func (b *Bridge) readOutput(r io.Reader) {
	defer b.readers.Done()
	defer close(b.frags)

	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.frags <- string(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// readErrors keeps stderr flowing into the flight recorder so diagnostics
// survive a crash.
func (b *Bridge) readErrors(r io.Reader) {
	defer b.readers.Done()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		b.rec.Received("[stderr] " + line)
		if strings.Contains(line, "Error") || strings.Contains(line, "fail") {
			b.log.Warn("engine stderr", "line", line)
		}
	}
}

var _ sim.Controller = (*Bridge)(nil)
