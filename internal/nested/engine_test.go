package nested

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blurfx/unnest/internal/archive"
	"github.com/blurfx/unnest/internal/archivetest"
	"github.com/blurfx/unnest/internal/formats"
	"github.com/blurfx/unnest/internal/progress"
)

func newRegistry(t *testing.T) *archive.Registry {
	t.Helper()
	sel := formats.All()
	sel.Rar = false
	reg, err := formats.Build(sel, archive.ExtractOptions{Verify: true, SkipExisting: true})
	require.NoError(t, err)
	return reg
}

// zipChain builds level1.zip containing level2.zip ... containing
// level<n>.zip, the innermost holding deep.txt.
func zipChain(t *testing.T, dir string, n int) {
	t.Helper()
	inner := archivetest.ZipBytes(t, archivetest.File("deep.txt", "bottom\n"))
	for level := n; level > 1; level-- {
		inner = archivetest.ZipBytes(t, archivetest.ZipEntry{
			Name: fmt.Sprintf("level%d.zip", level),
			Body: inner,
		})
	}
	archivetest.WriteFile(t, filepath.Join(dir, "level1.zip"), inner)
}

func TestDepthLimitedChain(t *testing.T) {
	tests := []struct {
		name       string
		chain      int
		maxDepth   int
		wantOK     int
		wantExists []string
		wantAbsent []string
	}{
		{
			name:     "three zips, three levels",
			chain:    3,
			maxDepth: 3,
			wantOK:   3,
			wantExists: []string{
				"level1_extracted/level2_extracted/level3_extracted/deep.txt",
			},
		},
		{
			name:     "four zips, three levels",
			chain:    4,
			maxDepth: 3,
			wantOK:   3,
			wantExists: []string{
				"level1_extracted/level2_extracted/level3_extracted/level4.zip",
			},
			wantAbsent: []string{
				"level1_extracted/level2_extracted/level3_extracted/level4_extracted",
			},
		},
		{
			name:     "depth one stops after the first archive",
			chain:    3,
			maxDepth: 1,
			wantOK:   1,
			wantExists: []string{
				"level1_extracted/level2.zip",
			},
			wantAbsent: []string{
				"level1_extracted/level2_extracted",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			zipChain(t, dir, tt.chain)

			sum := New(newRegistry(t), Options{MaxDepth: tt.maxDepth}).Run(context.Background(), dir)
			assert.Equal(t, tt.wantOK, sum.Successful)
			assert.Zero(t, sum.Failed)
			require.NoError(t, sum.Err)

			for _, p := range tt.wantExists {
				assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(p)))
			}
			for _, p := range tt.wantAbsent {
				assert.NoDirExists(t, filepath.Join(dir, filepath.FromSlash(p)))
			}
		})
	}
}

func TestMixedFormatNesting(t *testing.T) {
	dir := t.TempDir()
	zipData := archivetest.ZipBytes(t, archivetest.File("final.txt", "innermost\n"))
	tgzData := archivetest.TarBytes(t, ".gz", archivetest.TarEntry{Name: "inner.zip", Body: zipData})
	archivetest.WriteSevenZip(t, filepath.Join(dir, "outer.7z"),
		archivetest.SevenZipEntry{Name: "middle.tar.gz", Body: tgzData},
	)

	sum := New(newRegistry(t), Options{MaxDepth: 5}).Run(context.Background(), dir)
	assert.Equal(t, 3, sum.Successful)
	assert.Zero(t, sum.Failed)

	data, err := os.ReadFile(filepath.Join(dir, "outer_extracted", "middle_extracted", "inner_extracted", "final.txt"))
	require.NoError(t, err)
	assert.Equal(t, "innermost\n", string(data))
}

func TestDuplicateArchiveExtractedOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks")
	}
	dir := t.TempDir()
	src := archivetest.WriteZip(t, filepath.Join(dir, "a.zip"), archivetest.File("a.txt", "a"))
	require.NoError(t, os.Symlink(src, filepath.Join(dir, "link.zip")))

	sum := New(newRegistry(t), Options{}).Run(context.Background(), dir)
	assert.Equal(t, 1, sum.Successful)
	assert.Equal(t, 2, sum.Stats.CompressedFilesFound)
	assert.DirExists(t, filepath.Join(dir, "a_extracted"))
	assert.NoDirExists(t, filepath.Join(dir, "link_extracted"))
}

func TestHardlinkExtractedOnce(t *testing.T) {
	dir := t.TempDir()
	src := archivetest.WriteZip(t, filepath.Join(dir, "a.zip"), archivetest.File("a.txt", "a"))
	if err := os.Link(src, filepath.Join(dir, "b.zip")); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}
	if _, ok := identity(mustStat(t, src)); !ok {
		t.Skip("no file identity on this platform")
	}

	sum := New(newRegistry(t), Options{}).Run(context.Background(), dir)
	assert.Equal(t, 1, sum.Successful)
	assert.Equal(t, 2, sum.Stats.CompressedFilesFound)
	assert.DirExists(t, filepath.Join(dir, "a_extracted"))
	assert.NoDirExists(t, filepath.Join(dir, "b_extracted"))
}

func TestSharedStemScannedOnce(t *testing.T) {
	dir := t.TempDir()
	inner := archivetest.ZipBytes(t, archivetest.File("deep.txt", "deep"))
	archivetest.WriteZip(t, filepath.Join(dir, "a.zip"),
		archivetest.File("from-zip.txt", "z"),
		archivetest.ZipEntry{Name: "inner.zip", Body: inner},
	)
	archivetest.WriteTar(t, filepath.Join(dir, "a.tar.gz"), ".gz",
		archivetest.TarEntry{Name: "from-tar.txt", Body: []byte("t")},
	)

	sum := New(newRegistry(t), Options{}).Run(context.Background(), dir)
	assert.Equal(t, 3, sum.Successful)
	assert.Zero(t, sum.Failed)
	assert.Equal(t, 3, sum.Stats.CompressedFilesFound)
	assert.Equal(t, 3, sum.Stats.DirectoriesProcessed)
	assert.FileExists(t, filepath.Join(dir, "a_extracted", "from-zip.txt"))
	assert.FileExists(t, filepath.Join(dir, "a_extracted", "from-tar.txt"))
	assert.FileExists(t, filepath.Join(dir, "a_extracted", "inner_extracted", "deep.txt"))
}

func TestDistinctCopiesBothExtracted(t *testing.T) {
	dir := t.TempDir()
	data := archivetest.ZipBytes(t, archivetest.File("same.txt", "same"))
	archivetest.WriteFile(t, filepath.Join(dir, "first.zip"), data)
	archivetest.WriteFile(t, filepath.Join(dir, "second.zip"), data)

	sum := New(newRegistry(t), Options{}).Run(context.Background(), dir)
	assert.Equal(t, 2, sum.Successful)
	assert.FileExists(t, filepath.Join(dir, "first_extracted", "same.txt"))
	assert.FileExists(t, filepath.Join(dir, "second_extracted", "same.txt"))
}

func TestMissingDirectoryCountsFailure(t *testing.T) {
	sum := New(newRegistry(t), Options{}).Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, 0, sum.Successful)
	assert.Equal(t, 1, sum.Failed)
}

func TestCorruptArchiveNotDescended(t *testing.T) {
	dir := t.TempDir()
	archivetest.WriteFile(t, filepath.Join(dir, "corrupted.zip"), []byte("garbage bytes"))
	archivetest.WriteZip(t, filepath.Join(dir, "good.zip"), archivetest.File("ok.txt", "ok"))

	sum := New(newRegistry(t), Options{}).Run(context.Background(), dir)
	assert.Equal(t, 1, sum.Successful)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Stats.CompressedFilesFound)
}

func TestSubdirectoriesAtSameDepth(t *testing.T) {
	dir := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(dir, "sub", "deeper", "c.zip"), archivetest.File("c.txt", "c"))

	sum := New(newRegistry(t), Options{MaxDepth: 1}).Run(context.Background(), dir)
	assert.Equal(t, 1, sum.Successful)
	assert.FileExists(t, filepath.Join(dir, "sub", "deeper", "c_extracted", "c.txt"))
	assert.Equal(t, 3, sum.Stats.DirectoriesProcessed)
}

func TestFreshRunsAreIndependent(t *testing.T) {
	dir := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(dir, "a.zip"), archivetest.File("a.txt", "a"))
	eng := New(newRegistry(t), Options{})

	first := eng.Run(context.Background(), dir)
	second := eng.Run(context.Background(), dir)
	assert.Equal(t, 1, first.Successful)
	assert.Equal(t, 1, second.Successful, "a fresh run starts from zero and skips _extracted outputs")
}

func TestContinueSkipsVisited(t *testing.T) {
	dir := t.TempDir()
	src := archivetest.WriteZip(t, filepath.Join(dir, "a.zip"), archivetest.File("a.txt", "a"))
	eng := New(newRegistry(t), Options{})

	tr := NewTraversal()
	eng.Continue(context.Background(), tr, dir, 0)
	again := eng.Continue(context.Background(), tr, dir, 0)

	assert.Equal(t, 1, again.Successful)
	assert.True(t, tr.Visited(src))
	ok, failed := tr.Counts()
	assert.Equal(t, 1, ok)
	assert.Zero(t, failed)
}

func TestConcurrentContinue(t *testing.T) {
	dir := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(dir, "a.zip"), archivetest.File("a.txt", "a"))
	eng := New(newRegistry(t), Options{})
	tr := NewTraversal()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Continue(context.Background(), tr, dir, 0)
		}()
	}
	wg.Wait()

	ok, failed := tr.Counts()
	assert.Equal(t, 1, ok)
	assert.Zero(t, failed)
	assert.FileExists(t, filepath.Join(dir, "a_extracted", "a.txt"))
}

func TestDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(dir, "a.zip"), archivetest.File("a.txt", "a"))

	sum := New(newRegistry(t), Options{DryRun: true}).Run(context.Background(), dir)
	assert.Zero(t, sum.Successful)
	assert.Equal(t, 1, sum.Stats.CompressedFilesFound)
	assert.NoDirExists(t, filepath.Join(dir, "a_extracted"))
}

func TestDeleteAfterExtract(t *testing.T) {
	dir := t.TempDir()
	zipChain(t, dir, 2)
	counter := &progress.Counter{}

	sum := New(newRegistry(t), Options{DeleteAfter: true, Progress: counter}).Run(context.Background(), dir)
	assert.Equal(t, 2, sum.Successful)
	assert.NoFileExists(t, filepath.Join(dir, "level1.zip"))
	assert.NoFileExists(t, filepath.Join(dir, "level1_extracted", "level2.zip"))
	assert.FileExists(t, filepath.Join(dir, "level1_extracted", "level2_extracted", "deep.txt"))
	assert.Equal(t, 2, counter.Steps)
}

func TestCancelledRun(t *testing.T) {
	dir := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(dir, "a.zip"), archivetest.File("a.txt", "a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := New(newRegistry(t), Options{}).Run(ctx, dir)
	require.ErrorIs(t, sum.Err, context.Canceled)
	assert.Zero(t, sum.Successful)
}

func mustStat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi
}
