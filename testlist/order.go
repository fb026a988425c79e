package testlist

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const testFileSuffix = "_test.go"

// OrderBySize removes duplicate paths, keeping the first spelling seen, and
// sorts the rest from largest to smallest file. Files of equal size keep
// their input order. Larger files tend to run longer, so queueing them first
// keeps one worker from picking up the biggest file last.
func OrderBySize(files []string) ([]string, error) {
	type sized struct {
		path string
		size int64
	}

	seen := make(map[string]struct{}, len(files))
	entries := make([]sized, 0, len(files))
	for _, f := range files {
		key, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		info, err := os.Stat(f)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", f, err)
		}
		entries = append(entries, sized{path: f, size: info.Size()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].size > entries[j].size
	})

	ordered := make([]string, len(entries))
	for i, e := range entries {
		ordered[i] = e.path
	}
	return ordered, nil
}

// ExpandPaths turns the paths given on the command line into test files.
// Directories are walked for _test.go files, skipping vendor, testdata and
// hidden directories. Files are passed through untouched. No paths means
// the current directory.
func ExpandPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	var files []string
	for _, p := range paths {
		p = strings.TrimSuffix(p, "/...")
		if p == "" {
			p = "."
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(d.Name(), testFileSuffix) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	return files, nil
}

func skipDir(name string) bool {
	return name == "vendor" || name == "testdata" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
