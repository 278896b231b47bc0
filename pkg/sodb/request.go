package sodb

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ObjectGroupFile is the YAML request file of "sodb create -r objectgroup".
// Entries of ObjectFiles are created from local files and uploaded once the
// group exists, Objects are created empty.
type ObjectGroupFile struct {
	Name        string                `yaml:"name"`
	DatasetID   string                `yaml:"dataset_id"`
	Description string                `yaml:"description"`
	Labels      []Label               `yaml:"labels"`
	ObjectFiles []ObjectFromFile      `yaml:"object_files"`
	Objects     []CreateObjectRequest `yaml:"objects"`
}

type ObjectFromFile struct {
	Path string `yaml:"path"`
}

// ReadRequestFile decodes the YAML file at path into target.
func ReadRequestFile(path string, target interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "Failed to read request file")
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return errors.Wrapf(err, "Failed to parse request file %s", path)
	}
	return nil
}

// ObjectRequestFromFile builds the creation request of a local regular file.
func ObjectRequestFromFile(path string) (CreateObjectRequest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return CreateObjectRequest{}, err
	}
	if !info.Mode().IsRegular() {
		return CreateObjectRequest{}, errors.Errorf("%s is not a regular file", path)
	}
	filename, filetype := SplitFileName(filepath.Base(path))
	return CreateObjectRequest{
		Filename:   filename,
		Filetype:   filetype,
		ContentLen: info.Size(),
	}, nil
}

// CreateRequest assembles the remote request for the group. The returned
// paths are indexed like the request objects; entries created without a
// local file have an empty path.
func (f *ObjectGroupFile) CreateRequest() (*CreateObjectGroupRequest, []string, error) {
	req := &CreateObjectGroupRequest{
		DatasetID:   f.DatasetID,
		Name:        f.Name,
		Description: f.Description,
		Labels:      f.Labels,
	}
	var paths []string
	for _, of := range f.ObjectFiles {
		obj, err := ObjectRequestFromFile(of.Path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Invalid object file")
		}
		req.Objects = append(req.Objects, obj)
		paths = append(paths, of.Path)
	}
	for _, obj := range f.Objects {
		req.Objects = append(req.Objects, obj)
		paths = append(paths, "")
	}
	return req, paths, nil
}
