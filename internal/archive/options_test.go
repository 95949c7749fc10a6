package archive

import (
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractOptionsWithDefaults(t *testing.T) {
	tests := []struct {
		name         string
		opts         ExtractOptions
		wantEncoding string
	}{
		{
			name:         "empty encoding uses cp437",
			opts:         ExtractOptions{},
			wantEncoding: "cp437",
		},
		{
			name:         "explicit encoding preserved",
			opts:         ExtractOptions{NameEncoding: "euc-kr"},
			wantEncoding: "euc-kr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.opts.WithDefaults()
			assert.Equal(t, tt.wantEncoding, result.NameEncoding)
			assert.NotNil(t, result.FS)
			assert.NotNil(t, result.Logger)
		})
	}
}

func TestExtractOptionsPreservesOtherFields(t *testing.T) {
	mem := billy.NewMemory()
	opts := ExtractOptions{
		Password:     "secret",
		Overwrite:    true,
		SkipExisting: true,
		Verify:       true,
		Strict:       true,
		FS:           mem,
	}

	result := opts.WithDefaults()

	require.Same(t, mem, result.FS)
	assert.Equal(t, "secret", result.Password)
	assert.True(t, result.Overwrite)
	assert.True(t, result.SkipExisting)
	assert.True(t, result.Verify)
	assert.True(t, result.Strict)
}
