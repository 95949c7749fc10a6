package archive

import (
	"path/filepath"
	"strings"
)

// ExtractedSuffix marks directories created by nested extraction.
const ExtractedSuffix = "_extracted"

// MatchExtension returns the longest extension in exts that is a
// case-insensitive suffix of the base name of path. The base name must be
// longer than the extension, so a file called ".zip" is not an archive.
func MatchExtension(path string, exts []string) (string, bool) {
	base := strings.ToLower(filepath.Base(path))
	best := ""
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if len(base) > len(ext) && strings.HasSuffix(base, ext) && len(ext) > len(best) {
			best = ext
		}
	}
	return best, best != ""
}

// Stem returns the base name of path without the matched extension,
// keeping the original case.
func Stem(path, ext string) string {
	base := filepath.Base(path)
	if len(ext) >= len(base) {
		return base
	}
	return base[:len(base)-len(ext)]
}

// ExtractedDir returns the sibling directory nested extraction writes the
// archive into: "<stem>_extracted".
func ExtractedDir(archivePath, ext string) string {
	return filepath.Join(filepath.Dir(archivePath), Stem(archivePath, ext)+ExtractedSuffix)
}

// IsExtractedDir reports whether name looks like a nested extraction output.
func IsExtractedDir(name string) bool {
	return strings.HasSuffix(filepath.Base(name), ExtractedSuffix)
}
