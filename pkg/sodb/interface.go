// Standard interfaces and datatypes for the sodb client.
// Terms:
//   "project" : top level container owning datasets
//   "dataset" : a collection of object groups
//   "object group" : a named, revisioned collection of objects inside a dataset
//   "object" : a single stored file, always owned by one dataset
package sodb

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface handed to every subsystem. The manager
// creates a logrus.Logger unless the caller supplies one.
type Logger = logrus.FieldLogger

type Label struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Dataset struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// Object identifies a remote object. It is immutable once fetched.
type Object struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	DatasetID  string  `json:"dataset_id"`
	Filename   string  `json:"filename"`
	Filetype   string  `json:"filetype"`
	ContentLen int64   `json:"content_len,omitempty"`
	Labels     []Label `json:"labels,omitempty"`
}

// FullName is the local file name of the object: "<filename>.<filetype>", or
// just the filename when the object has no type.
func (o *Object) FullName() string {
	if o.Filetype == "" {
		return o.Filename
	}
	return o.Filename + "." + o.Filetype
}

// SplitFileName derives the filename and filetype of a local path the same
// way FullName joins them: stem and extension without the dot.
func SplitFileName(base string) (filename, filetype string) {
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return base, ""
	}
	return base[:idx], base[idx+1:]
}

type ObjectGroup struct {
	ID          string   `json:"id"`
	DatasetID   string   `json:"dataset_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Labels      []Label  `json:"labels,omitempty"`
	Objects     []Object `json:"objects"`
}

// PageRequest is the cursor of a paginated listing. LastUUID is the id of
// the last object seen on the previous page, empty for the first page.
type PageRequest struct {
	PageSize uint64 `json:"page_size"`
	LastUUID string `json:"last_uuid"`
}

// UploadPart is the completion receipt of one uploaded chunk.
type UploadPart struct {
	PartNumber int64  `json:"part"`
	ETag       string `json:"etag"`
}

type DownloadLink struct {
	URL    string  `json:"download_link"`
	Object *Object `json:"object"`
}

type CreateObjectRequest struct {
	Filename   string  `json:"filename" yaml:"filename"`
	Filetype   string  `json:"filetype" yaml:"filetype"`
	ContentLen int64   `json:"content_len" yaml:"content_len"`
	Labels     []Label `json:"labels,omitempty" yaml:"labels"`
}

type CreateObjectGroupRequest struct {
	DatasetID   string                `json:"dataset_id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Labels      []Label               `json:"labels,omitempty"`
	Objects     []CreateObjectRequest `json:"objects"`
}

// ObjectLink ties the index of a CreateObjectRequest to the id of the object
// created for it.
type ObjectLink struct {
	Index    int64  `json:"index"`
	ObjectID string `json:"object_id"`
}

type CreateObjectGroupResponse struct {
	ObjectGroupID string       `json:"object_group_id"`
	ObjectLinks   []ObjectLink `json:"object_links"`
}

// ResourceService is the remote object storage service. Implementations must
// be safe for concurrent use; every call is independent.
type ResourceService interface {
	ListProjectDatasets(ctx context.Context, projectID string) ([]Dataset, error)

	// ListDatasetObjectGroups returns one page of the object groups of a
	// dataset. A page shorter than page.PageSize is the last one.
	ListDatasetObjectGroups(ctx context.Context, datasetID string, page PageRequest) ([]ObjectGroup, error)

	ListObjectGroup(ctx context.Context, groupID string) (*ObjectGroup, error)

	CreateObjectGroup(ctx context.Context, req *CreateObjectGroupRequest) (*CreateObjectGroupResponse, error)

	// Signed links. Each returned URL authorizes one plain HTTP GET or PUT.
	CreateDownloadLink(ctx context.Context, objectID string) (*DownloadLink, error)
	CreateUploadLink(ctx context.Context, objectID string) (string, error)

	// Multipart upload lifecycle.
	StartMultipartUpload(ctx context.Context, objectID string) error
	GetMultipartUploadLink(ctx context.Context, objectID string, part int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, objectID string, parts []UploadPart) error
	AbortMultipartUpload(ctx context.Context, objectID string) error
}
