package linear_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/adapters/linear"
	"go.trai.ch/tern/internal/core/domain"
)

func descriptor(id string) *domain.TestDescriptor {
	return &domain.TestDescriptor{ID: domain.NewInternedString(id)}
}

func TestSink_Session(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	sink := linear.NewSink(&buf, &buf)
	a, b, c, d := descriptor("a"), descriptor("b"), descriptor("c"), descriptor("d")

	sink.Publish(domain.Event{Kind: domain.EventStarted, Test: a, Attempt: 1})
	out := sink.TestOutput(a)
	_, _ = fmt.Fprint(out, "hello\nwor")
	_, _ = fmt.Fprint(out, "ld\n")
	sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: a, Outcome: domain.Outcome{
		Status: domain.StatusPassed, Attempts: 1, Duration: 1500 * time.Millisecond,
	}})

	sink.Publish(domain.Event{Kind: domain.EventStarted, Test: b, Attempt: 1})
	sink.Publish(domain.Event{Kind: domain.EventRetrying, Test: b, Attempt: 2})
	_, _ = fmt.Fprint(sink.TestOutput(b), "partial")
	failed := domain.Failed(domain.ReasonBody, errors.New("exit status 1\nstderr tail"))
	failed.Attempts = 2
	failed.Duration = 250 * time.Millisecond
	sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: b, Outcome: failed})

	sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: c, Outcome: domain.Skipped(domain.ReasonDependencyFailed)})
	sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: d, Outcome: domain.Cancelled(errors.New("test cancelled"))})

	require.NoError(t, sink.Flush())

	g := goldie.New(t)
	g.Assert(t, "session", buf.Bytes())
}

func TestSink_SplitsStreams(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var stdout, stderr bytes.Buffer
	sink := linear.NewSink(&stdout, &stderr)
	d := descriptor("api/login")

	sink.Publish(domain.Event{Kind: domain.EventStarted, Test: d, Attempt: 1})
	_, _ = fmt.Fprint(sink.TestOutput(d), "line\r\n\n")
	sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: d, Outcome: domain.Passed(1)})

	assert.Equal(t, "[api/login] line\n", stdout.String())
	assert.Contains(t, stderr.String(), "[api/login] ✓ Passed in 0s")
}

func TestSink_FlushResets(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	sink := linear.NewSink(&buf, &buf)
	sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: descriptor("x"), Outcome: domain.Passed(1)})
	require.NoError(t, sink.Flush())
	assert.Contains(t, buf.String(), "1 tests: 1 passed, 0 failed, 0 skipped")

	buf.Reset()
	require.NoError(t, sink.Flush())
	assert.Empty(t, buf.String())
}

func TestSink_ColorsWithoutNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")

	var buf bytes.Buffer
	sink := linear.NewSink(&buf, &buf)
	sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: descriptor("x"), Outcome: domain.Passed(1)})

	assert.Contains(t, buf.String(), "\x1b[")
}
