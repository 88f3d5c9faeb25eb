package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type Direction int

const (
	DirSent Direction = iota
	DirReceived
	DirNote
)

func (d Direction) String() string {
	switch d {
	case DirSent:
		return "TX"
	case DirReceived:
		return "RX"
	default:
		return "--"
	}
}

type Entry struct {
	Time time.Time
	Dir  Direction
	Text string
}

// Recorder is the bridge's flight recorder: an append-only transcript of
// every byte sent, every fragment received and the lifecycle notes in
// between. The bridge appends during the session, callers read it back
// after shutdown.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{entries: make([]Entry, 0, 256)}
}

func (r *Recorder) Sent(text string)     { r.append(DirSent, text) }
func (r *Recorder) Received(text string) { r.append(DirReceived, text) }

func (r *Recorder) Notef(format string, args ...any) {
	r.append(DirNote, fmt.Sprintf(format, args...))
}

func (r *Recorder) append(dir Direction, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Time: time.Now(), Dir: dir, Text: text})
}

// Entries returns a copy of the transcript so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Transcript renders the recording as one line per entry.
func (r *Recorder) Transcript() string {
	var b strings.Builder
	for _, e := range r.Entries() {
		fmt.Fprintf(&b, "%s %s %s\n", e.Time.Format("15:04:05.000"), e.Dir, strings.TrimRight(e.Text, "\n"))
	}
	return b.String()
}
