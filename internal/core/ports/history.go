package ports

import "go.trai.ch/tern/internal/core/domain"

// HistoryStore persists the last outcome of every test.
//
//go:generate mockgen -source=history.go -destination=mocks/mock_history.go -package=mocks
type HistoryStore interface {
	// Get returns the last record for a test id, or nil, nil if there is none.
	Get(testID string) (*domain.RunRecord, error)

	// Put stores records, replacing earlier records of the same tests.
	Put(records ...domain.RunRecord) error
}
