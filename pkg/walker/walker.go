// Package walker turns a local directory tree into per-directory batches of
// regular files, one batch per future object group.
package walker

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// ErrUnsupportedEntry is returned for anything that is neither a regular file
// nor a directory. Such entries are never skipped.
var ErrUnsupportedEntry = errors.New("unsupported filesystem entry")

// Batches maps a directory path to the regular files directly inside it.
// Directories without regular files have no entry.
type Batches map[string][]string

// Dirs returns the batch directories in lexical order.
func (b Batches) Dirs() []string {
	dirs := make([]string, 0, len(b))
	for dir := range b {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Count returns the number of files over all batches.
func (b Batches) Count() int {
	n := 0
	for _, files := range b {
		n += len(files)
	}
	return n
}

// Walk visits root and every directory below it. Paths in the result are
// joined onto root as given. Unreadable directories, symlinks and special
// files abort the walk with an error naming the offending path.
func Walk(root string) (Batches, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to stat walk root")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}

	batches := make(Batches)
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// ReadDir uses Lstat, so symlinks show up as such
		entries, err := ioutil.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to read directory %s", dir)
		}

		var files []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			switch mode := entry.Mode(); {
			case mode.IsRegular():
				files = append(files, path)
			case mode.IsDir():
				stack = append(stack, path)
			default:
				return nil, errors.Wrapf(ErrUnsupportedEntry, "%s (%s)", path, mode.Type())
			}
		}
		if len(files) > 0 {
			batches[dir] = files
		}
	}

	return batches, nil
}

// GroupName names the object group of the batch in dir: its path relative
// to root with forward slashes, or the base name of root for root itself.
func GroupName(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		return filepath.Base(root)
	}
	return filepath.ToSlash(rel)
}
