package remote

import (
	"github.com/sciobjsdb/sodb/pkg/sodb"
)

// Request and response messages of the resource services. Replies without a
// payload use empty.Empty.

type GetProjectDatasetsRequest struct {
	ID string `json:"id"`
}

type GetProjectDatasetsResponse struct {
	Datasets []sodb.Dataset `json:"datasets"`
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CreateProjectResponse struct {
	ID string `json:"id"`
}

type GetDatasetObjectGroupsRequest struct {
	ID          string            `json:"id"`
	PageRequest *sodb.PageRequest `json:"page_request,omitempty"`
}

type GetDatasetObjectGroupsResponse struct {
	ObjectGroups []sodb.ObjectGroup `json:"object_groups"`
}

type CreateDatasetRequest struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

type CreateDatasetResponse struct {
	ID string `json:"id"`
}

type GetObjectGroupRequest struct {
	ID string `json:"id"`
}

type GetObjectGroupResponse struct {
	ObjectGroup *sodb.ObjectGroup `json:"object_group"`
}

type CreateDownloadLinkRequest struct {
	ID string `json:"id"`
}

type CreateUploadLinkRequest struct {
	ID string `json:"id"`
}

type CreateUploadLinkResponse struct {
	UploadLink string `json:"upload_link"`
}

type StartMultipartUploadRequest struct {
	ID string `json:"id"`
}

type GetMultipartUploadLinkRequest struct {
	ObjectID   string `json:"object_id"`
	UploadPart int64  `json:"upload_part"`
}

type GetMultipartUploadLinkResponse struct {
	UploadLink string `json:"upload_link"`
}

type CompleteMultipartUploadRequest struct {
	ObjectID string            `json:"object_id"`
	Parts    []sodb.UploadPart `json:"parts"`
}

type AbortMultipartUploadRequest struct {
	ObjectID string `json:"object_id"`
}
