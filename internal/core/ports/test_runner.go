package ports

import (
	"context"

	"go.trai.ch/tern/internal/core/domain"
)

// TestRunner executes a dispatched test.
//
//go:generate mockgen -source=test_runner.go -destination=mocks/mock_test_runner.go -package=mocks
type TestRunner interface {
	// Run executes every attempt of node and returns the final outcome.
	Run(ctx context.Context, node *domain.ExecutionNode) domain.Outcome
}
