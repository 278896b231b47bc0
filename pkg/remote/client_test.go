package remote_test

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/remote"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	lastPage  *sodb.PageRequest
	completed []sodb.UploadPart
	aborted   string
}

func (f *fakeServer) GetProjectDatasets(ctx context.Context, in *remote.GetProjectDatasetsRequest) (*remote.GetProjectDatasetsResponse, error) {
	if in.ID != "p1" {
		return nil, status.Errorf(codes.NotFound, "project %s not found", in.ID)
	}
	return &remote.GetProjectDatasetsResponse{Datasets: []sodb.Dataset{
		{ID: "d1", ProjectID: "p1", Name: "first"},
		{ID: "d2", ProjectID: "p1", Name: "second"},
	}}, nil
}

func (f *fakeServer) CreateProject(ctx context.Context, in *remote.CreateProjectRequest) (*remote.CreateProjectResponse, error) {
	return &remote.CreateProjectResponse{ID: "project-" + in.Name}, nil
}

func (f *fakeServer) GetDatasetObjectGroups(ctx context.Context, in *remote.GetDatasetObjectGroupsRequest) (*remote.GetDatasetObjectGroupsResponse, error) {
	f.lastPage = in.PageRequest
	return &remote.GetDatasetObjectGroupsResponse{ObjectGroups: []sodb.ObjectGroup{{
		ID:        "g1",
		DatasetID: in.ID,
		Name:      "group",
		Objects:   []sodb.Object{{ID: "o1", Filename: "a", Filetype: "txt"}},
	}}}, nil
}

func (f *fakeServer) CreateDataset(ctx context.Context, in *remote.CreateDatasetRequest) (*remote.CreateDatasetResponse, error) {
	return &remote.CreateDatasetResponse{ID: in.ProjectID + "/" + in.Name}, nil
}

func (f *fakeServer) GetObjectGroup(ctx context.Context, in *remote.GetObjectGroupRequest) (*remote.GetObjectGroupResponse, error) {
	return &remote.GetObjectGroupResponse{ObjectGroup: &sodb.ObjectGroup{ID: in.ID, Name: "group"}}, nil
}

func (f *fakeServer) CreateObjectGroup(ctx context.Context, in *sodb.CreateObjectGroupRequest) (*sodb.CreateObjectGroupResponse, error) {
	resp := &sodb.CreateObjectGroupResponse{ObjectGroupID: "g-" + in.Name}
	for i := range in.Objects {
		resp.ObjectLinks = append(resp.ObjectLinks, sodb.ObjectLink{Index: int64(i), ObjectID: in.Objects[i].Filename})
	}
	return resp, nil
}

func (f *fakeServer) CreateDownloadLink(ctx context.Context, in *remote.CreateDownloadLinkRequest) (*sodb.DownloadLink, error) {
	return &sodb.DownloadLink{URL: "http://blobs/" + in.ID, Object: &sodb.Object{ID: in.ID}}, nil
}

func (f *fakeServer) CreateUploadLink(ctx context.Context, in *remote.CreateUploadLinkRequest) (*remote.CreateUploadLinkResponse, error) {
	return &remote.CreateUploadLinkResponse{UploadLink: "http://blobs/" + in.ID}, nil
}

func (f *fakeServer) StartMultipartUpload(ctx context.Context, in *remote.StartMultipartUploadRequest) (*empty.Empty, error) {
	if in.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing object id")
	}
	return &empty.Empty{}, nil
}

func (f *fakeServer) GetMultipartUploadLink(ctx context.Context, in *remote.GetMultipartUploadLinkRequest) (*remote.GetMultipartUploadLinkResponse, error) {
	return &remote.GetMultipartUploadLinkResponse{UploadLink: "http://blobs/" + in.ObjectID + "/" + strconv.FormatInt(in.UploadPart, 10)}, nil
}

func (f *fakeServer) CompleteMultipartUpload(ctx context.Context, in *remote.CompleteMultipartUploadRequest) (*empty.Empty, error) {
	f.completed = in.Parts
	return &empty.Empty{}, nil
}

func (f *fakeServer) AbortMultipartUpload(ctx context.Context, in *remote.AbortMultipartUploadRequest) (*empty.Empty, error) {
	f.aborted = in.ObjectID
	return &empty.Empty{}, nil
}

func serve(t *testing.T, srv remote.ResourceServer, token string) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(remote.RequireToken(token)))
	remote.RegisterResourceServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener, tokenType remote.TokenType, token string) *remote.Client {
	t.Helper()
	log, _ := test.NewNullLogger()
	client, err := remote.Dial(context.Background(), remote.Config{
		Host:      "bufnet",
		Insecure:  true,
		Token:     token,
		TokenType: tokenType,
	}, log, grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestListing(t *testing.T) {
	srv := &fakeServer{}
	client := dial(t, serve(t, srv, ""), remote.APIToken, "")
	ctx := context.Background()

	datasets, err := client.ListProjectDatasets(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []sodb.Dataset{
		{ID: "d1", ProjectID: "p1", Name: "first"},
		{ID: "d2", ProjectID: "p1", Name: "second"},
	}, datasets)

	groups, err := client.ListDatasetObjectGroups(ctx, "d1", sodb.PageRequest{PageSize: 500, LastUUID: "o0"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "d1", groups[0].DatasetID)
	assert.Equal(t, "a.txt", groups[0].Objects[0].FullName())
	assert.Equal(t, &sodb.PageRequest{PageSize: 500, LastUUID: "o0"}, srv.lastPage)

	group, err := client.ListObjectGroup(ctx, "g7")
	require.NoError(t, err)
	assert.Equal(t, "g7", group.ID)

	link, err := client.CreateDownloadLink(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "http://blobs/o1", link.URL)
	assert.Equal(t, "o1", link.Object.ID)
}

func TestStatusCodesSurvive(t *testing.T) {
	client := dial(t, serve(t, &fakeServer{}, ""), remote.APIToken, "")

	_, err := client.ListProjectDatasets(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(errors.Cause(err)))
	assert.Contains(t, err.Error(), "GetProjectDatasets")

	err = client.StartMultipartUpload(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Cause(err)))
}

func TestMultipartCalls(t *testing.T) {
	srv := &fakeServer{}
	client := dial(t, serve(t, srv, ""), remote.APIToken, "")
	ctx := context.Background()

	require.NoError(t, client.StartMultipartUpload(ctx, "o1"))

	link, err := client.GetMultipartUploadLink(ctx, "o1", 3)
	require.NoError(t, err)
	assert.Equal(t, "http://blobs/o1/3", link)

	parts := []sodb.UploadPart{{PartNumber: 1, ETag: `"a"`}, {PartNumber: 2, ETag: `"b"`}}
	require.NoError(t, client.CompleteMultipartUpload(ctx, "o1", parts))
	assert.Equal(t, parts, srv.completed)

	require.NoError(t, client.AbortMultipartUpload(ctx, "o2"))
	assert.Equal(t, "o2", srv.aborted)

	upload, err := client.CreateUploadLink(ctx, "o3")
	require.NoError(t, err)
	assert.Equal(t, "http://blobs/o3", upload)
}

func TestCreateCalls(t *testing.T) {
	client := dial(t, serve(t, &fakeServer{}, ""), remote.APIToken, "")
	ctx := context.Background()

	id, err := client.CreateProject(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "project-x", id)

	id, err = client.CreateDataset(ctx, "p1", "ds")
	require.NoError(t, err)
	assert.Equal(t, "p1/ds", id)

	resp, err := client.CreateObjectGroup(ctx, &sodb.CreateObjectGroupRequest{
		DatasetID: "d1",
		Name:      "grp",
		Objects:   []sodb.CreateObjectRequest{{Filename: "a"}, {Filename: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "g-grp", resp.ObjectGroupID)
	assert.Equal(t, []sodb.ObjectLink{{Index: 0, ObjectID: "a"}, {Index: 1, ObjectID: "b"}}, resp.ObjectLinks)
}

func TestToken(t *testing.T) {
	lis := serve(t, &fakeServer{}, "secret")

	_, err := dial(t, lis, remote.APIToken, "").ListProjectDatasets(context.Background(), "p1")
	assert.Equal(t, codes.Unauthenticated, status.Code(errors.Cause(err)))

	_, err = dial(t, lis, remote.APIToken, "wrong").ListProjectDatasets(context.Background(), "p1")
	assert.Equal(t, codes.Unauthenticated, status.Code(errors.Cause(err)))

	_, err = dial(t, lis, remote.APIToken, "secret").ListProjectDatasets(context.Background(), "p1")
	assert.NoError(t, err)

	_, err = dial(t, lis, remote.AccessToken, "secret").ListProjectDatasets(context.Background(), "p1")
	assert.NoError(t, err)
}

func TestParseTokenType(t *testing.T) {
	tt, ok := remote.ParseTokenType("AccessToken")
	assert.True(t, ok)
	assert.Equal(t, remote.AccessToken, tt)

	tt, ok = remote.ParseTokenType("")
	assert.True(t, ok)
	assert.Equal(t, remote.APIToken, tt)

	_, ok = remote.ParseTokenType("bearer")
	assert.False(t, ok)
}
