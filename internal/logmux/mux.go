// Package logmux fans the per-stream line channels of every child into a
// single ordered channel consumed by the console sink.
package logmux

import (
	"fmt"
	"sync"
	"time"

	"github.com/Paintersrp/workit/internal/console"
)

// Mux fans in lines from multiple drain tasks and delivers them via a bounded
// channel. Lines from one source keep their order.
//
// By default delivery blocks, so a slow consumer pushes back on the drains
// and from there on the children. A lossy mux instead drops lines when the
// output buffer is full and later emits a synthesized "dropped=N" line for
// each affected stream.
type Mux struct {
	out   chan console.Line
	lossy bool

	mu     sync.Mutex
	closed bool
	drops  map[dropKey]dropRecord
	inputs sync.WaitGroup
}

// Option customises a Mux.
type Option func(*Mux)

// Lossy makes the mux drop lines rather than block when the consumer falls
// behind.
func Lossy() Option {
	return func(m *Mux) { m.lossy = true }
}

type dropKey struct {
	source string
	stream console.Stream
}

type dropRecord struct {
	count int
	tag   console.Tag
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int, opts ...Option) *Mux {
	if size <= 0 {
		size = 1
	}
	m := &Mux{
		out:   make(chan console.Line, size),
		drops: make(map[dropKey]dropRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Output exposes the muxed line channel.
func (m *Mux) Output() <-chan console.Line {
	return m.out
}

// Add registers a new source channel. The mux consumes lines until the source
// channel is closed. The returned channel is closed once every line of the
// source has been handed to Output. Adding to a closed mux returns an already
// closed channel and ignores source.
func (m *Mux) Add(source <-chan console.Line) <-chan struct{} {
	done := make(chan struct{})
	if source == nil || !m.acquire() {
		close(done)
		return done
	}
	go func() {
		defer m.inputs.Done()
		defer close(done)
		seen := make(map[dropKey]struct{})
		for line := range source {
			line = normalize(line)
			seen[keyOf(line)] = struct{}{}
			m.deliver(line)
		}
		for key := range seen {
			if rec := m.takeDrops(key); rec.count > 0 {
				m.out <- synthesizeDropLine(key, rec)
			}
		}
	}()
	return done
}

// Emit delivers a single line, blocking until the consumer has room for it
// even on a lossy mux. Every line already handed to Output precedes it.
// Emit reports false when the mux is closed.
func (m *Mux) Emit(line console.Line) bool {
	if !m.acquire() {
		return false
	}
	defer m.inputs.Done()
	m.out <- normalize(line)
	return true
}

// Close waits for all sources to be drained, emits any pending drop metadata,
// and closes the output channel.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.inputs.Add(1)
	return true
}

func (m *Mux) deliver(line console.Line) {
	if !m.lossy {
		m.out <- line
		return
	}
	key := keyOf(line)
	if !m.flushPending(key) {
		m.recordDrop(key, line.Tag, 1)
		return
	}
	if m.trySend(line) {
		return
	}
	m.recordDrop(key, line.Tag, 1)
}

func (m *Mux) flushPending(key dropKey) bool {
	for {
		rec := m.takeDrops(key)
		if rec.count == 0 {
			return true
		}
		if m.trySend(synthesizeDropLine(key, rec)) {
			continue
		}
		m.recordDrop(key, rec.tag, rec.count)
		return false
	}
}

func (m *Mux) takeDrops(key dropKey) dropRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.drops[key]
	if rec.count != 0 {
		delete(m.drops, key)
	}
	return rec
}

func (m *Mux) recordDrop(key dropKey, tag console.Tag, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.drops[key]
	rec.count += count
	if rec.tag.Name == "" {
		rec.tag = tag
	}
	m.drops[key] = rec
}

func (m *Mux) flushDrops() {
	m.mu.Lock()
	pending := m.drops
	m.drops = make(map[dropKey]dropRecord)
	m.mu.Unlock()

	for key, rec := range pending {
		if rec.count > 0 {
			m.out <- synthesizeDropLine(key, rec)
		}
	}
}

func (m *Mux) trySend(line console.Line) bool {
	select {
	case m.out <- line:
		return true
	default:
		return false
	}
}

func keyOf(line console.Line) dropKey {
	return dropKey{source: line.Source, stream: line.Stream}
}

func normalize(line console.Line) console.Line {
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now()
	}
	if line.Stream == "" {
		line.Stream = console.StreamStdout
	}
	if line.Tag.Name == "" {
		line.Tag.Name = line.Source
	}
	return line
}

// synthesizeDropLine reports drops under the tag of the stream that lost
// them. The line itself is always written to stderr.
func synthesizeDropLine(key dropKey, rec dropRecord) console.Line {
	tag := rec.tag
	if tag.Name == "" {
		tag.Name = key.source
	}
	return console.Line{
		Timestamp: time.Now(),
		Source:    key.source,
		Stream:    console.StreamStderr,
		Tag:       tag,
		Text:      fmt.Sprintf("dropped=%d", rec.count),
	}
}
