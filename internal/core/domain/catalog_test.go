package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/zerr"
)

func newTest(id, unit string, deps ...domain.DependencyRef) *domain.TestDescriptor {
	return &domain.TestDescriptor{
		ID:           domain.NewInternedString(id),
		Unit:         domain.NewInternedString(unit),
		Dependencies: deps,
	}
}

func ids(c *domain.Catalog) []string {
	var out []string
	for _, d := range c.All() {
		out = append(out, d.ID.String())
	}
	return out
}

func TestCatalog_Add(t *testing.T) {
	c := domain.NewCatalog()
	require.NoError(t, c.Add(newTest("a", "U")))

	err := c.Add(newTest("a", "U"))
	require.Error(t, err)

	zErr, ok := err.(*zerr.Error)
	require.True(t, ok, "expected *zerr.Error, got %T", err)
	assert.Equal(t, "a", zErr.Metadata()["test_id"])

	require.ErrorContains(t, c.Add(&domain.TestDescriptor{}), domain.ErrInvalidDescriptor.Error())
	assert.Equal(t, 1, c.Len())
}

func TestCatalog_UnitTests(t *testing.T) {
	c := domain.NewCatalog()
	require.NoError(t, c.Add(newTest("a", "U")))
	require.NoError(t, c.Add(newTest("b", "V")))
	require.NoError(t, c.Add(newTest("c", "U")))

	assert.Equal(t,
		[]domain.InternedString{domain.NewInternedString("a"), domain.NewInternedString("c")},
		c.UnitTests(domain.NewInternedString("U")),
	)
}

func TestCatalog_Select(t *testing.T) {
	c := domain.NewCatalog()
	require.NoError(t, c.Add(newTest("db.setup", "DB")))
	require.NoError(t, c.Add(newTest("db.seed", "DB", domain.DependsOn("db.setup"))))
	require.NoError(t, c.Add(newTest("api.login", "API", domain.DependsOnUnit("DB"))))
	require.NoError(t, c.Add(newTest("ui.render", "UI")))
	require.NoError(t, c.Add(newTest("ui.click", "UI", domain.DependsOn("missing"))))

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{
			name:     "no patterns selects everything",
			patterns: nil,
			want:     []string{"db.setup", "db.seed", "api.login", "ui.render", "ui.click"},
		},
		{
			name:     "test dependency closure",
			patterns: []string{"db.seed"},
			want:     []string{"db.setup", "db.seed"},
		},
		{
			name:     "unit dependency closure keeps registration order",
			patterns: []string{"api.*"},
			want:     []string{"db.setup", "db.seed", "api.login"},
		},
		{
			name:     "dangling dependency is ignored",
			patterns: []string{"ui.click"},
			want:     []string{"ui.click"},
		},
		{
			name:     "no match",
			patterns: []string{"nothing"},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Select(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	t.Run("malformed pattern", func(t *testing.T) {
		_, err := c.Select([]string{"["})
		require.ErrorContains(t, err, domain.ErrInvalidPattern.Error())
	})
}
