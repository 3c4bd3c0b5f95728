package logmux

import (
	"fmt"
	"testing"
	"time"

	"github.com/Paintersrp/workit/internal/console"
)

func TestMuxFansInMultipleSources(t *testing.T) {
	mux := New(4)
	src1 := make(chan console.Line)
	src2 := make(chan console.Line)

	mux.Add(src1)
	mux.Add(src2)

	go func() {
		src1 <- console.Line{Source: "API", Text: "api ready"}
		src1 <- console.Line{Source: "API", Text: "api ok"}
		close(src1)
	}()

	go func() {
		src2 <- console.Line{Source: "Frontend", Text: "frontend ready"}
		close(src2)
	}()

	go mux.Close()

	perSource := map[string][]string{}
	for line := range mux.Output() {
		perSource[line.Source] = append(perSource[line.Source], line.Text)
	}

	if got := perSource["API"]; len(got) != 2 || got[0] != "api ready" || got[1] != "api ok" {
		t.Fatalf("API lines out of order or missing: %v", got)
	}
	if got := perSource["Frontend"]; len(got) != 1 || got[0] != "frontend ready" {
		t.Fatalf("Frontend lines missing: %v", got)
	}
}

func TestMuxNormalizesLines(t *testing.T) {
	mux := New(2)
	src := make(chan console.Line, 1)
	mux.Add(src)

	src <- console.Line{Source: "API", Text: "hello"}
	close(src)
	go mux.Close()

	line := <-mux.Output()
	if line.Stream != console.StreamStdout {
		t.Fatalf("expected stdout default, got %q", line.Stream)
	}
	if line.Tag.Name != "API" {
		t.Fatalf("expected tag to default to source, got %q", line.Tag.Name)
	}
	if line.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be populated")
	}
}

func TestMuxEmitsDropMetaLines(t *testing.T) {
	mux := New(1, Lossy())
	src := make(chan console.Line)

	mux.Add(src)

	done := make(chan struct{})
	go func() {
		tag := console.Tag{Name: "API", Color: console.ColorCyan}
		src <- console.Line{Source: "API", Tag: tag, Text: "line-1"}
		src <- console.Line{Source: "API", Tag: tag, Text: "line-2"}
		src <- console.Line{Source: "API", Tag: tag, Text: "line-3"}
		close(src)
		close(done)
	}()

	<-done

	go mux.Close()

	var lines []console.Line
	for line := range mux.Output() {
		lines = append(lines, line)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines (1 log + 1 meta), got %d", len(lines))
	}
	if lines[0].Text != "line-1" {
		t.Fatalf("expected first line to be the original, got %q", lines[0].Text)
	}

	meta := lines[1]
	if meta.Source != "API" {
		t.Fatalf("meta line source mismatch: got %s", meta.Source)
	}
	if meta.Text != "dropped=2" {
		t.Fatalf("expected drop metadata, got %q", meta.Text)
	}
	if meta.Stream != console.StreamStderr {
		t.Fatalf("expected meta line on stderr, got %s", meta.Stream)
	}
	if meta.Tag.Name != "API" {
		t.Fatalf("expected meta tag API, got %q", meta.Tag.Name)
	}
	if time.Since(meta.Timestamp) > time.Second {
		t.Fatalf("expected recent timestamp, got %v", meta.Timestamp)
	}
}

func TestMuxBlocksInsteadOfDroppingForSlowConsumer(t *testing.T) {
	mux := New(1)
	stdout := make(chan console.Line)
	stderr := make(chan console.Line)
	mux.Add(stdout)
	mux.Add(stderr)

	const total = 500
	go func() {
		for i := 0; i < total; i++ {
			stdout <- console.Line{Source: "API", Text: fmt.Sprintf("line-%d", i)}
		}
		close(stdout)
		stderr <- console.Line{Source: "API", Stream: console.StreamStderr, Text: "fatal: boom"}
		close(stderr)
		mux.Close()
	}()

	var got []string
	fatal := false
	for line := range mux.Output() {
		time.Sleep(20 * time.Microsecond)
		if line.Stream == console.StreamStderr {
			if line.Text != "fatal: boom" {
				t.Fatalf("unexpected stderr line %q", line.Text)
			}
			fatal = true
			continue
		}
		got = append(got, line.Text)
	}

	if len(got) != total {
		t.Fatalf("expected %d stdout lines, got %d", total, len(got))
	}
	for i, text := range got {
		if want := fmt.Sprintf("line-%d", i); text != want {
			t.Fatalf("line %d: expected %q, got %q", i, want, text)
		}
	}
	if !fatal {
		t.Fatal("expected the stderr line to be delivered")
	}
}

func TestMuxLossyDropsAreCountedPerStream(t *testing.T) {
	mux := New(1, Lossy())
	stdout := make(chan console.Line)
	stderr := make(chan console.Line)
	stdoutDone := mux.Add(stdout)
	stderrDone := mux.Add(stderr)

	outTag := console.Tag{Name: "API"}
	errTag := console.Tag{Name: "API Error"}

	// Fill the buffer so every following line is dropped.
	stdout <- console.Line{Source: "API", Tag: outTag, Text: "kept"}
	for i := 0; i < 3; i++ {
		stdout <- console.Line{Source: "API", Tag: outTag, Text: "out"}
	}
	for i := 0; i < 2; i++ {
		stderr <- console.Line{Source: "API", Stream: console.StreamStderr, Tag: errTag, Text: "err"}
	}
	close(stdout)
	close(stderr)

	go mux.Close()

	counts := map[string]string{}
	for line := range mux.Output() {
		if line.Text == "kept" {
			continue
		}
		counts[line.Tag.Name] = line.Text
	}
	<-stdoutDone
	<-stderrDone

	if counts["API"] != "dropped=3" {
		t.Fatalf("expected stdout drops under API tag, got %v", counts)
	}
	if counts["API Error"] != "dropped=2" {
		t.Fatalf("expected stderr drops under API Error tag, got %v", counts)
	}
}

func TestMuxEmitFollowsDeliveredSource(t *testing.T) {
	mux := New(1)
	src := make(chan console.Line)
	done := mux.Add(src)

	go func() {
		for i := 0; i < 50; i++ {
			src <- console.Line{Source: "API", Text: fmt.Sprintf("line-%d", i)}
		}
		close(src)
		<-done
		mux.Emit(console.Line{Source: "API", Stream: console.StreamStderr, Text: "exited with code 1"})
		mux.Close()
	}()

	var last console.Line
	count := 0
	for line := range mux.Output() {
		last = line
		count++
	}
	if count != 51 {
		t.Fatalf("expected 51 lines, got %d", count)
	}
	if last.Text != "exited with code 1" {
		t.Fatalf("expected the emitted line last, got %q", last.Text)
	}
}

func TestMuxEmitAfterCloseIsRejected(t *testing.T) {
	mux := New(1)
	mux.Close()
	if mux.Emit(console.Line{Source: "API", Text: "late"}) {
		t.Fatal("expected Emit on a closed mux to report false")
	}
	select {
	case <-mux.Add(make(chan console.Line)):
	default:
		t.Fatal("expected Add on a closed mux to return a closed channel")
	}
}
