// Package layout maps remote objects to local filesystem paths. A Strategy
// is a pure function of its inputs and strategies are interchangeable.
package layout

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
)

const (
	DataDirName  = "_data"
	IndexDirName = "_index"
)

type Strategy interface {
	// ObjectGroupPath is the directory the objects of groupName are written to.
	ObjectGroupPath(base string, obj *sodb.Object, groupName string) string

	// FilePath is the path of obj inside the directory returned by ObjectGroupPath.
	FilePath(groupDir string, obj *sodb.Object) string

	// DatasetIndexPath is the index directory of a dataset. Reserved, no
	// transfer writes there yet.
	DatasetIndexPath(base string, dataset *sodb.Dataset) string
}

// Canonical mirrors the remote hierarchy:
// <base>/<project_id>/<dataset_id>/_data/<group_name>/<filename>.<filetype>
type Canonical struct{}

func (Canonical) ObjectGroupPath(base string, obj *sodb.Object, groupName string) string {
	return filepath.Join(base, obj.ProjectID, obj.DatasetID, DataDirName, groupName)
}

func (Canonical) FilePath(groupDir string, obj *sodb.Object) string {
	return filepath.Join(groupDir, obj.FullName())
}

func (Canonical) DatasetIndexPath(base string, dataset *sodb.Dataset) string {
	return filepath.Join(base, dataset.ProjectID, dataset.ID, IndexDirName)
}

// Flat puts every object group directly below the base path.
type Flat struct{}

func (Flat) ObjectGroupPath(base string, obj *sodb.Object, groupName string) string {
	return filepath.Join(base, groupName)
}

func (Flat) FilePath(groupDir string, obj *sodb.Object) string {
	return filepath.Join(groupDir, obj.FullName())
}

func (Flat) DatasetIndexPath(base string, dataset *sodb.Dataset) string {
	return filepath.Join(base, IndexDirName)
}

// FromName returns the strategy registered under name ("canonical" or "flat").
func FromName(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "canonical":
		return Canonical{}, nil
	case "flat":
		return Flat{}, nil
	default:
		return nil, errors.Errorf("unknown path style %q (want canonical or flat)", name)
	}
}
