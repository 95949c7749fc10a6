package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SecureJoin joins an archive member name onto root. Empty names, absolute
// names (unix, drive-letter and UNC forms), backslash names and names whose
// cleaned form climbs above root are rejected with ErrPathTraversal or
// ErrUnsafeContent.
func SecureJoin(root, name string) (string, error) {
	if err := checkMemberName(name); err != nil {
		return "", err
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}

	joined := filepath.Join(rootAbs, filepath.Clean(name))
	if !Within(rootAbs, joined) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return joined, nil
}

// Within reports whether path is root itself or lies below it. Both paths
// must be absolute and clean.
func Within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

func checkMemberName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty member name", ErrUnsafeContent)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrPathTraversal, name)
	}
	if len(name) >= 2 && name[1] == ':' &&
		((name[0] >= 'A' && name[0] <= 'Z') || (name[0] >= 'a' && name[0] <= 'z')) {
		return fmt.Errorf("%w: windows absolute path %q", ErrPathTraversal, name)
	}
	if strings.HasPrefix(name, "\\\\") || strings.HasPrefix(name, "//") {
		return fmt.Errorf("%w: UNC path %q", ErrPathTraversal, name)
	}
	// Backslashes are legal in unix names but read as separators elsewhere.
	if filepath.Separator != '\\' && strings.ContainsRune(name, '\\') {
		return fmt.Errorf("%w: backslash in path %q", ErrPathTraversal, name)
	}

	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return nil
}

// CheckMember validates name against root without touching the filesystem.
func CheckMember(root, name string) error {
	_, err := SecureJoin(root, name)
	return err
}
