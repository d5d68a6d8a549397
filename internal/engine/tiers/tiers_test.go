package tiers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, 100, c.Ceiling(Free, "/api/v1/readings"))
	assert.Equal(t, 10000, c.Ceiling(Premium, "/api/v1/readings"))
	assert.Equal(t, 60, c.Ceiling("platinum", "/api/v1/readings"), "unknown tier falls back to anonymous")
	assert.Equal(t, 2, c.MaxCredentials(Free))
	assert.Equal(t, 10, c.MaxCredentials(Premium))
	assert.False(t, c.Issuable(Anonymous))
	assert.True(t, c.Issuable(Basic))
	assert.Equal(t, []string{Anonymous, Basic, Free, Premium}, c.Names())
}

func TestParse_EndpointOverride(t *testing.T) {
	c, err := Parse([]byte(`
tiers:
  - name: anonymous
    requests_per_hour: 10
  - name: free
    requests_per_hour: 100
    max_credentials: 2
    endpoints:
      /api/v1/exports: 5
`))
	require.NoError(t, err)

	assert.Equal(t, 5, c.Ceiling(Free, "/api/v1/exports"))
	assert.Equal(t, 100, c.Ceiling(Free, "/api/v1/readings"))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "tiers: []"},
		{"missing anonymous", "tiers:\n  - name: free\n    requests_per_hour: 1\n"},
		{"zero ceiling", "tiers:\n  - name: anonymous\n    requests_per_hour: 0\n"},
		{"duplicate", "tiers:\n  - name: anonymous\n    requests_per_hour: 1\n  - name: anonymous\n    requests_per_hour: 2\n"},
		{"bad override", "tiers:\n  - name: anonymous\n    requests_per_hour: 1\n    endpoints:\n      /x: -1\n"},
		{"not yaml", "tiers: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 100, c.Ceiling(Free, "/x"))

	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers:\n  - name: anonymous\n    requests_per_hour: 7\n"), 0o600))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, c.Ceiling(Anonymous, "/x"))
}
