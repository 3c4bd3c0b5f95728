package console

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// LineWriter is an io.Writer that reassembles complete lines from arbitrary
// chunks. Text after the last newline of a chunk is buffered until a later
// chunk completes it or Close flushes it. Blank lines are never emitted.
type LineWriter struct {
	source string
	stream Stream
	tag    Tag
	emitFn func(Line)

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter returns a writer that calls emit for every complete line.
func NewLineWriter(source string, stream Stream, tag Tag, emit func(Line)) *LineWriter {
	return &LineWriter{source: source, stream: stream, tag: tag, emitFn: emit}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := len(p)
	reader := bufio.NewReader(bytes.NewReader(p))
	for {
		segment, err := reader.ReadBytes('\n')
		if len(segment) > 0 {
			if segment[len(segment)-1] == '\n' {
				w.buf.Write(segment[:len(segment)-1])
				w.emit(w.buf.String())
				w.buf.Reset()
			} else {
				w.buf.Write(segment)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return total, err
		}
	}
	return total, nil
}

// Close flushes any buffered partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return nil
	}
	w.emit(w.buf.String())
	w.buf.Reset()
	return nil
}

func (w *LineWriter) emit(text string) {
	text = strings.TrimSuffix(text, "\r")
	if strings.TrimSpace(text) == "" {
		return
	}
	w.emitFn(Line{
		Timestamp: time.Now(),
		Source:    w.source,
		Stream:    w.stream,
		Tag:       w.tag,
		Text:      text,
	})
}
