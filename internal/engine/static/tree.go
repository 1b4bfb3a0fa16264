package static

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Tree abstracts a source tree as path -> text content. Paths are
// slash-separated and relative to the package root. The retrieval
// collaborator that checks out package versions supplies one of these.
type Tree interface {
	Files() []string
	Read(path string) ([]byte, error)
}

// DirTree serves a package checkout from disk.
type DirTree struct {
	root     string
	files    []string
	excludes []glob.Glob
}

func NewDirTree(root string, excludePatterns []string) (*DirTree, error) {
	t := &DirTree{root: root}
	for _, pat := range excludePatterns {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, err
		}
		t.excludes = append(t.excludes, g)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if t.excluded(rel) {
			return nil
		}
		t.files = append(t.files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(t.files)
	return t, nil
}

func (t *DirTree) excluded(rel string) bool {
	for _, g := range t.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (t *DirTree) Files() []string {
	return t.files
}

func (t *DirTree) Read(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(t.root, filepath.FromSlash(path)))
}

// MapTree is an in-memory tree, used by tests and by callers that already
// hold file contents (e.g. extracted archives).
type MapTree map[string]string

func (t MapTree) Files() []string {
	files := make([]string, 0, len(t))
	for path := range t {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

func (t MapTree) Read(path string) ([]byte, error) {
	content, ok := t[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(content), nil
}

// moduleName maps a file path inside the package tree to its dotted module
// name. Returns "" for files that are not importable Python modules (wrong
// suffix, or a directory chain without __init__).
func moduleName(pkgName, path string, isPackageDir func(dir string) bool) (module string, isPackage bool) {
	stem := path
	switch {
	case strings.HasSuffix(path, ".pyi"):
		stem = path[:len(path)-len(".pyi")]
	case strings.HasSuffix(path, ".py"):
		stem = path[:len(path)-len(".py")]
	default:
		return "", false
	}

	parts := strings.Split(stem, "/")
	for i := 0; i < len(parts)-1; i++ {
		if !isPackageDir(strings.Join(parts[:i+1], "/")) {
			return "", false
		}
	}

	if parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
		isPackage = true
	}

	if len(parts) == 0 {
		return pkgName, true
	}
	// A single root file named after the package is the package itself.
	if len(parts) == 1 && parts[0] == pkgName {
		return pkgName, isPackage
	}
	return pkgName + "." + strings.Join(parts, "."), isPackage
}
