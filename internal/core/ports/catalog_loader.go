package ports

import "go.trai.ch/tern/internal/core/domain"

// CatalogLoader loads a suite definition.
//
//go:generate mockgen -source=catalog_loader.go -destination=mocks/mock_catalog_loader.go -package=mocks
type CatalogLoader interface {
	// Load reads the suite file at path and returns the catalog, hooks and engine configuration.
	Load(path string) (*domain.Suite, error)
}
