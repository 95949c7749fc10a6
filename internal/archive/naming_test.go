package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchExtension(t *testing.T) {
	exts := []string{".tar", ".tar.gz", ".tgz", ".zip"}

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"data.tar.gz", ".tar.gz", true},
		{"DATA.TAR.GZ", ".tar.gz", true},
		{"/x/y/backup.tgz", ".tgz", true},
		{"plain.tar", ".tar", true},
		{"photos.zip", ".zip", true},
		{".zip", "", false},
		{"notes.txt", "", false},
		{"archive.gz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := MatchExtension(tt.path, exts)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractedDir(t *testing.T) {
	tests := []struct {
		path string
		ext  string
		want string
	}{
		{"/data/level1.zip", ".zip", "/data/level1_extracted"},
		{"/data/Bundle.TAR.GZ", ".tar.gz", "/data/Bundle_extracted"},
		{"/data/a.b.7z", ".7z", "/data/a.b_extracted"},
	}
	for _, tt := range tests {
		assert.Equal(t, filepath.FromSlash(tt.want), ExtractedDir(filepath.FromSlash(tt.path), tt.ext))
	}
}

func TestIsExtractedDir(t *testing.T) {
	assert.True(t, IsExtractedDir("/x/level1_extracted"))
	assert.True(t, IsExtractedDir("y_extracted"))
	assert.False(t, IsExtractedDir("/x/extracted_files"))
	assert.False(t, IsExtractedDir("plain"))
}

func TestStatsAdd(t *testing.T) {
	a := Stats{DirectoriesProcessed: 1, CompressedFilesFound: 2, SuccessfulExtractions: 3, FailedExtractions: 4}
	b := Stats{DirectoriesProcessed: 10, CompressedFilesFound: 20, SuccessfulExtractions: 30, FailedExtractions: 40}

	assert.Equal(t, a.Add(b), b.Add(a))
	assert.Equal(t, Stats{11, 22, 33, 44}, a.Add(b))
	assert.Equal(t, a, a.Add(Stats{}))
}

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.Success()
	c.Success()
	c.Failure()

	assert.Equal(t, Stats{SuccessfulExtractions: 2, FailedExtractions: 1}, c.Snapshot())
}
