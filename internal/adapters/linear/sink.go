// Package linear prints the result stream as chronological, prefixed lines for terminals and CI logs.
package linear

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/ui/output"
	"go.trai.ch/tern/internal/ui/style"
)

// Sink implements ports.ResultSink, ports.OutputSink and ports.Flusher.
// Status lines go to stderr, test output goes to stdout prefixed with the test id.
type Sink struct {
	stdout io.Writer
	stderr io.Writer
	out    *termenv.Output

	mu       sync.Mutex
	partial  map[string]*bytes.Buffer
	counts   map[domain.Status]int
	failures []failure
}

type failure struct {
	id      string
	status  domain.Status
	reason  domain.Reason
	message string
}

// NewSink creates a Sink. Nil writers select os.Stdout and os.Stderr.
func NewSink(stdout, stderr io.Writer) *Sink {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Sink{
		stdout:  stdout,
		stderr:  stderr,
		out:     output.NewWithProfile(stderr, output.ColorProfileANSI),
		partial: make(map[string]*bytes.Buffer),
		counts:  make(map[domain.Status]int),
	}
}

// Publish implements ports.ResultSink.
func (s *Sink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ev.ID()
	switch ev.Kind {
	case domain.EventStarted:
		s.statusLocked(id, s.faint("Starting..."))
	case domain.EventRetrying:
		s.statusLocked(id, s.colored(style.Warning, style.Yellow)+
			fmt.Sprintf(" Retrying (attempt %d)", ev.Attempt))
	case domain.EventTerminal:
		s.flushPartialLocked(id)
		delete(s.partial, id)
		s.terminalLocked(id, ev.Outcome)
	}
}

// TestOutput implements ports.OutputSink.
func (s *Sink) TestOutput(test *domain.TestDescriptor) io.Writer {
	return &lineWriter{sink: s, id: test.ID.String()}
}

// Flush prints the session summary and resets the sink for the next session.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.partial {
		s.flushPartialLocked(id)
	}

	total := 0
	for _, n := range s.counts {
		total += n
	}
	if total == 0 {
		s.reset()
		return nil
	}

	_, _ = fmt.Fprintln(s.stderr)
	if len(s.failures) > 0 {
		_, _ = fmt.Fprintln(s.stderr, "Failures:")
		for _, f := range s.failures {
			icon, color := style.ForStatus(f.status)
			line := fmt.Sprintf("  %s %s", s.colored(icon, color), f.id)
			if f.reason != domain.ReasonNone {
				line += " (" + string(f.reason) + ")"
			}
			if f.message != "" {
				line += ": " + f.message
			}
			_, _ = fmt.Fprintln(s.stderr, line)
		}
		_, _ = fmt.Fprintln(s.stderr)
	}

	parts := []string{
		fmt.Sprintf("%d passed", s.counts[domain.StatusPassed]),
		fmt.Sprintf("%d failed", s.counts[domain.StatusFailed]),
		fmt.Sprintf("%d skipped", s.counts[domain.StatusSkipped]),
	}
	if n := s.counts[domain.StatusCancelled]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d cancelled", n))
	}
	_, _ = fmt.Fprintf(s.stderr, "%d tests: %s\n", total, strings.Join(parts, ", "))

	s.reset()
	return nil
}

func (s *Sink) reset() {
	s.partial = make(map[string]*bytes.Buffer)
	s.counts = make(map[domain.Status]int)
	s.failures = nil
}

func (s *Sink) terminalLocked(id string, o domain.Outcome) {
	s.counts[o.Status]++
	icon, color := style.ForStatus(o.Status)
	mark := s.colored(icon, color)

	var msg string
	switch o.Status {
	case domain.StatusPassed:
		msg = "Passed in " + formatDuration(o.Duration)
		if o.Attempts > 1 {
			msg += fmt.Sprintf(" (%d attempts)", o.Attempts)
		}
	case domain.StatusSkipped:
		msg = "Skipped"
		if o.Reason != domain.ReasonNone {
			msg += " (" + string(o.Reason) + ")"
		}
	case domain.StatusCancelled:
		msg = "Cancelled"
	default:
		msg = fmt.Sprintf("Failed (%s)", o.Reason)
		if o.Attempts > 0 {
			msg += fmt.Sprintf(" after %s", formatDuration(o.Duration))
		}
	}

	if o.Status == domain.StatusFailed || o.Status == domain.StatusCancelled {
		f := failure{id: id, status: o.Status, reason: o.Reason}
		if len(o.Errors) > 0 {
			f.message = firstLine(o.Errors[0].Error())
		}
		s.failures = append(s.failures, f)
		if f.message != "" {
			msg += ": " + f.message
		}
	}

	s.statusLocked(id, mark+" "+msg)
}

func (s *Sink) statusLocked(id, msg string) {
	_, _ = fmt.Fprintf(s.stderr, "%s %s\n", s.faint("["+id+"]"), msg)
}

func (s *Sink) faint(text string) string {
	return s.out.String(text).Faint().String()
}

func (s *Sink) colored(text string, c lipgloss.Color) string {
	return s.out.String(text).Foreground(s.out.Color(string(c))).String()
}

// writeLocked prints every complete line of data and keeps the remainder buffered.
func (s *Sink) writeLocked(id string, data []byte) {
	buf, ok := s.partial[id]
	if !ok {
		buf = new(bytes.Buffer)
		s.partial[id] = buf
	}
	buf.Write(data)

	for {
		i := bytes.IndexByte(buf.Bytes(), '\n')
		if i < 0 {
			return
		}
		line := buf.Next(i + 1)
		s.printLineLocked(id, line)
	}
}

func (s *Sink) flushPartialLocked(id string) {
	if buf, ok := s.partial[id]; ok && buf.Len() > 0 {
		s.printLineLocked(id, buf.Bytes())
		buf.Reset()
	}
}

func (s *Sink) printLineLocked(id string, line []byte) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return
	}
	_, _ = fmt.Fprintf(s.stdout, "[%s] %s\n", id, line)
}

type lineWriter struct {
	sink *Sink
	id   string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.writeLocked(w.id, p)
	return len(p), nil
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
