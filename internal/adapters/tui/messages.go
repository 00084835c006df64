package tui

import (
	"time"

	"go.trai.ch/tern/internal/core/domain"
)

// MsgDiscovered adds a test to the list.
type MsgDiscovered struct {
	ID   string
	Unit string
}

// MsgStarted marks a test as running.
type MsgStarted struct {
	ID      string
	Attempt int
	Time    time.Time
}

// MsgRetrying records another attempt of a running test.
type MsgRetrying struct {
	ID      string
	Attempt int
}

// MsgOutput appends output to a test's log.
type MsgOutput struct {
	ID   string
	Data []byte
}

// MsgTerminal records the final outcome of a test.
type MsgTerminal struct {
	ID      string
	Outcome domain.Outcome
}

// MsgSessionDone marks the end of the session.
type MsgSessionDone struct{}
