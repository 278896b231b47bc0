package localstore

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/remote"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sciobjsdb/sodb/pkg/transfer"
)

// SeedFile describes a project with inline object contents, for filling a
// running local store by hand.
//
//	project: demo
//	datasets:
//	  - name: raw
//	    object_groups:
//	      - name: run1
//	        objects:
//	          - name: reads.fastq
//	            content: "@r1"
type SeedFile struct {
	Project  string        `yaml:"project"`
	Datasets []SeedDataset `yaml:"datasets"`
}

type SeedDataset struct {
	Name         string      `yaml:"name"`
	ObjectGroups []SeedGroup `yaml:"object_groups"`
}

type SeedGroup struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Labels      []sodb.Label `yaml:"labels"`
	Objects     []SeedObject `yaml:"objects"`
}

type SeedObject struct {
	Name    string       `yaml:"name"`
	Content string       `yaml:"content"`
	Labels  []sodb.Label `yaml:"labels"`
}

type SeedResult struct {
	ProjectID string
	// DatasetIDs by dataset name
	DatasetIDs map[string]string
}

// Seed creates everything in seed through client and uploads the contents.
func Seed(ctx context.Context, client *remote.Client, uploader *transfer.Uploader, seed *SeedFile) (*SeedResult, error) {
	if seed.Project == "" {
		return nil, errors.New("seed file names no project")
	}

	scratch, err := ioutil.TempDir("", "sodb-seed")
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create scratch directory")
	}
	defer os.RemoveAll(scratch)

	projectID, err := client.CreateProject(ctx, seed.Project)
	if err != nil {
		return nil, err
	}
	result := &SeedResult{ProjectID: projectID, DatasetIDs: make(map[string]string)}

	n := 0
	for _, ds := range seed.Datasets {
		datasetID, err := client.CreateDataset(ctx, projectID, ds.Name)
		if err != nil {
			return result, err
		}
		result.DatasetIDs[ds.Name] = datasetID

		for _, group := range ds.ObjectGroups {
			req := &sodb.CreateObjectGroupRequest{
				DatasetID:   datasetID,
				Name:        group.Name,
				Description: group.Description,
				Labels:      group.Labels,
			}
			var paths []string
			for _, obj := range group.Objects {
				n++
				path := filepath.Join(scratch, strconv.Itoa(n))
				if err := ioutil.WriteFile(path, []byte(obj.Content), 0644); err != nil {
					return result, errors.Wrap(err, "Failed to stage seed object")
				}
				filename, filetype := sodb.SplitFileName(obj.Name)
				req.Objects = append(req.Objects, sodb.CreateObjectRequest{
					Filename:   filename,
					Filetype:   filetype,
					ContentLen: int64(len(obj.Content)),
					Labels:     obj.Labels,
				})
				paths = append(paths, path)
			}

			resp, err := client.CreateObjectGroup(ctx, req)
			if err != nil {
				return result, errors.Wrapf(err, "Failed to create object group %s", group.Name)
			}
			if err := uploader.UploadGroup(ctx, resp, paths, 0); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}
