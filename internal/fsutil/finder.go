// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// FindFiles returns every file with the given extension that is named by
// paths or found below a directory in paths. Each file appears once; files
// found in one directory are sorted so that loading order is stable. Paths
// that do not exist are skipped. Hidden directories are not descended into.
func FindFiles(paths []string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var (
		files  []string
		seen   = make(map[string]struct{})
		result *multierror.Error
	)
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			result = multierror.Append(result, fmt.Errorf("error accessing path %s: %w", path, err))
			continue
		}
		if !info.IsDir() {
			if strings.HasSuffix(path, extension) {
				add(filepath.Clean(path))
			}
			continue
		}
		found, err := FindFilesByExtension(path, extension)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("error walking %s: %w", path, err))
			continue
		}
		for _, p := range found {
			add(p)
		}
	}
	return files, result.ErrorOrNil()
}

// FindFilesByExtension recursively searches rootPath for files ending with
// extension and returns their paths in lexical order.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
