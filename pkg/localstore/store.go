package localstore

import (
	"context"
	"strings"
	"sync"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/google/uuid"
	"github.com/sciobjsdb/sodb/pkg/remote"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultPageSize = 500

// Store is an in-memory catalog of projects, datasets, object groups and
// objects. Object bytes live in the Backend.
type Store struct {
	backend Backend
	log     sodb.Logger

	m        sync.RWMutex
	projects map[string]*sodb.Project
	datasets map[string]*sodb.Dataset
	groups   map[string]*sodb.ObjectGroup
	objects  map[string]*sodb.Object
	// listing order
	projectDatasets map[string][]string
	datasetGroups   map[string][]string
	// object id -> group id
	objectGroup map[string]string
	// object id -> backend upload id
	uploads map[string]string
}

var _ remote.ResourceServer = (*Store)(nil)

func NewStore(backend Backend, log sodb.Logger) *Store {
	return &Store{
		backend:         backend,
		log:             log.WithField("module", "localstore"),
		projects:        make(map[string]*sodb.Project),
		datasets:        make(map[string]*sodb.Dataset),
		groups:          make(map[string]*sodb.ObjectGroup),
		objects:         make(map[string]*sodb.Object),
		projectDatasets: make(map[string][]string),
		datasetGroups:   make(map[string][]string),
		objectGroup:     make(map[string]string),
		uploads:         make(map[string]string),
	}
}

func newID() string {
	return uuid.New().String()
}

func blobKey(obj *sodb.Object) string {
	return obj.DatasetID + "/" + obj.ID
}

func (s *Store) CreateProject(ctx context.Context, in *remote.CreateProjectRequest) (*remote.CreateProjectResponse, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, status.Error(codes.InvalidArgument, "project name is empty")
	}
	p := &sodb.Project{ID: newID(), Name: in.Name}

	s.m.Lock()
	s.projects[p.ID] = p
	s.m.Unlock()

	s.log.WithField("project", p.ID).Infof("Created project %q", p.Name)
	return &remote.CreateProjectResponse{ID: p.ID}, nil
}

func (s *Store) GetProjectDatasets(ctx context.Context, in *remote.GetProjectDatasetsRequest) (*remote.GetProjectDatasetsResponse, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	if _, ok := s.projects[in.ID]; !ok {
		return nil, status.Errorf(codes.NotFound, "project %s not found", in.ID)
	}
	out := &remote.GetProjectDatasetsResponse{Datasets: []sodb.Dataset{}}
	for _, id := range s.projectDatasets[in.ID] {
		out.Datasets = append(out.Datasets, *s.datasets[id])
	}
	return out, nil
}

func (s *Store) CreateDataset(ctx context.Context, in *remote.CreateDatasetRequest) (*remote.CreateDatasetResponse, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, status.Error(codes.InvalidArgument, "dataset name is empty")
	}

	s.m.Lock()
	defer s.m.Unlock()

	if _, ok := s.projects[in.ProjectID]; !ok {
		return nil, status.Errorf(codes.NotFound, "project %s not found", in.ProjectID)
	}
	ds := &sodb.Dataset{ID: newID(), ProjectID: in.ProjectID, Name: in.Name}
	s.datasets[ds.ID] = ds
	s.projectDatasets[in.ProjectID] = append(s.projectDatasets[in.ProjectID], ds.ID)

	s.log.WithField("dataset", ds.ID).Infof("Created dataset %q", ds.Name)
	return &remote.CreateDatasetResponse{ID: ds.ID}, nil
}

// GetDatasetObjectGroups pages through the groups of a dataset in creation
// order. A page starts after the group holding the cursor object.
func (s *Store) GetDatasetObjectGroups(ctx context.Context, in *remote.GetDatasetObjectGroupsRequest) (*remote.GetDatasetObjectGroupsResponse, error) {
	page := sodb.PageRequest{PageSize: defaultPageSize}
	if in.PageRequest != nil {
		page = *in.PageRequest
		if page.PageSize == 0 {
			page.PageSize = defaultPageSize
		}
	}

	s.m.RLock()
	defer s.m.RUnlock()

	if _, ok := s.datasets[in.ID]; !ok {
		return nil, status.Errorf(codes.NotFound, "dataset %s not found", in.ID)
	}
	ids := s.datasetGroups[in.ID]

	start := 0
	if page.LastUUID != "" {
		groupID, ok := s.objectGroup[page.LastUUID]
		if !ok || s.groups[groupID].DatasetID != in.ID {
			return nil, status.Errorf(codes.InvalidArgument, "cursor %s is not an object of dataset %s", page.LastUUID, in.ID)
		}
		for i, id := range ids {
			if id == groupID {
				start = i + 1
				break
			}
		}
	}

	end := start + int(page.PageSize)
	if end > len(ids) {
		end = len(ids)
	}
	out := &remote.GetDatasetObjectGroupsResponse{ObjectGroups: []sodb.ObjectGroup{}}
	for _, id := range ids[start:end] {
		out.ObjectGroups = append(out.ObjectGroups, *s.groups[id])
	}
	return out, nil
}

func (s *Store) GetObjectGroup(ctx context.Context, in *remote.GetObjectGroupRequest) (*remote.GetObjectGroupResponse, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	g, ok := s.groups[in.ID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "object group %s not found", in.ID)
	}
	group := *g
	return &remote.GetObjectGroupResponse{ObjectGroup: &group}, nil
}

// CreateObjectGroup creates the group and one object per request entry.
// Groups without objects are rejected: the listing cursor is an object id.
func (s *Store) CreateObjectGroup(ctx context.Context, in *sodb.CreateObjectGroupRequest) (*sodb.CreateObjectGroupResponse, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, status.Error(codes.InvalidArgument, "object group name is empty")
	}
	if len(in.Objects) == 0 {
		return nil, status.Error(codes.InvalidArgument, "object group has no objects")
	}
	for i, o := range in.Objects {
		if o.Filename == "" {
			return nil, status.Errorf(codes.InvalidArgument, "object %d has no filename", i)
		}
	}

	s.m.Lock()
	defer s.m.Unlock()

	ds, ok := s.datasets[in.DatasetID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "dataset %s not found", in.DatasetID)
	}

	group := &sodb.ObjectGroup{
		ID:          newID(),
		DatasetID:   ds.ID,
		Name:        in.Name,
		Description: in.Description,
		Labels:      in.Labels,
		Objects:     make([]sodb.Object, 0, len(in.Objects)),
	}
	resp := &sodb.CreateObjectGroupResponse{ObjectGroupID: group.ID}
	for i, o := range in.Objects {
		obj := sodb.Object{
			ID:         newID(),
			ProjectID:  ds.ProjectID,
			DatasetID:  ds.ID,
			Filename:   o.Filename,
			Filetype:   o.Filetype,
			ContentLen: o.ContentLen,
			Labels:     o.Labels,
		}
		group.Objects = append(group.Objects, obj)
		s.objects[obj.ID] = &group.Objects[len(group.Objects)-1]
		s.objectGroup[obj.ID] = group.ID
		resp.ObjectLinks = append(resp.ObjectLinks, sodb.ObjectLink{Index: int64(i), ObjectID: obj.ID})
	}
	s.groups[group.ID] = group
	s.datasetGroups[ds.ID] = append(s.datasetGroups[ds.ID], group.ID)

	s.log.WithField("group", group.ID).Infof("Created object group %q with %d objects", group.Name, len(group.Objects))
	return resp, nil
}

func (s *Store) object(id string) (*sodb.Object, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "object %s not found", id)
	}
	o := *obj
	return &o, nil
}

func (s *Store) CreateDownloadLink(ctx context.Context, in *remote.CreateDownloadLinkRequest) (*sodb.DownloadLink, error) {
	obj, err := s.object(in.ID)
	if err != nil {
		return nil, err
	}
	url, err := s.backend.DownloadLink(ctx, blobKey(obj))
	if err != nil {
		return nil, statusError(err)
	}
	return &sodb.DownloadLink{URL: url, Object: obj}, nil
}

func (s *Store) CreateUploadLink(ctx context.Context, in *remote.CreateUploadLinkRequest) (*remote.CreateUploadLinkResponse, error) {
	obj, err := s.object(in.ID)
	if err != nil {
		return nil, err
	}
	url, err := s.backend.UploadLink(ctx, blobKey(obj))
	if err != nil {
		return nil, statusError(err)
	}
	return &remote.CreateUploadLinkResponse{UploadLink: url}, nil
}

// StartMultipartUpload opens a session for the object. A second start
// replaces the previous session.
func (s *Store) StartMultipartUpload(ctx context.Context, in *remote.StartMultipartUploadRequest) (*empty.Empty, error) {
	obj, err := s.object(in.ID)
	if err != nil {
		return nil, err
	}
	uploadID, err := s.backend.StartMultipart(ctx, blobKey(obj))
	if err != nil {
		return nil, statusError(err)
	}

	s.m.Lock()
	previous := s.uploads[obj.ID]
	s.uploads[obj.ID] = uploadID
	s.m.Unlock()

	if previous != "" {
		if err := s.backend.AbortMultipart(ctx, blobKey(obj), previous); err != nil {
			s.log.WithField("object_id", obj.ID).WithError(err).Warn("Failed to abort replaced upload")
		}
	}
	return &empty.Empty{}, nil
}

func (s *Store) upload(objectID string) (*sodb.Object, string, error) {
	obj, err := s.object(objectID)
	if err != nil {
		return nil, "", err
	}
	s.m.RLock()
	uploadID, ok := s.uploads[objectID]
	s.m.RUnlock()
	if !ok {
		return nil, "", status.Errorf(codes.FailedPrecondition, "object %s has no multipart upload in progress", objectID)
	}
	return obj, uploadID, nil
}

func (s *Store) GetMultipartUploadLink(ctx context.Context, in *remote.GetMultipartUploadLinkRequest) (*remote.GetMultipartUploadLinkResponse, error) {
	obj, uploadID, err := s.upload(in.ObjectID)
	if err != nil {
		return nil, err
	}
	url, err := s.backend.PartLink(ctx, blobKey(obj), uploadID, in.UploadPart)
	if err != nil {
		return nil, statusError(err)
	}
	return &remote.GetMultipartUploadLinkResponse{UploadLink: url}, nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, in *remote.CompleteMultipartUploadRequest) (*empty.Empty, error) {
	obj, uploadID, err := s.upload(in.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := s.backend.CompleteMultipart(ctx, blobKey(obj), uploadID, in.Parts); err != nil {
		return nil, statusError(err)
	}
	s.forget(obj.ID, uploadID)

	s.log.WithField("object_id", obj.ID).Debugf("Completed multipart upload with %d parts", len(in.Parts))
	return &empty.Empty{}, nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, in *remote.AbortMultipartUploadRequest) (*empty.Empty, error) {
	obj, uploadID, err := s.upload(in.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := s.backend.AbortMultipart(ctx, blobKey(obj), uploadID); err != nil {
		return nil, statusError(err)
	}
	s.forget(obj.ID, uploadID)

	s.log.WithField("object_id", obj.ID).Info("Aborted multipart upload")
	return &empty.Empty{}, nil
}

func (s *Store) forget(objectID, uploadID string) {
	s.m.Lock()
	if s.uploads[objectID] == uploadID {
		delete(s.uploads, objectID)
	}
	s.m.Unlock()
}
