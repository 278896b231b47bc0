// Package remote talks to the object storage resource services over gRPC.
//
// Messages are plain Go structs encoded with a JSON codec registered under
// the "json" content subtype, so no generated code is needed on either side.
// Client implements sodb.ResourceService; the server side descriptors are
// registered with RegisterResourceServer.
package remote

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

type Config struct {
	Host      string
	Port      int
	Insecure  bool
	Token     string
	TokenType TokenType
}

func (c Config) Target() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is safe for concurrent use; every call is independent.
type Client struct {
	conn *grpc.ClientConn
	log  sodb.Logger
}

var _ sodb.ResourceService = (*Client)(nil)

// Dial connects lazily: connection errors surface on the first call.
func Dial(ctx context.Context, config Config, log sodb.Logger, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		grpc.WithUnaryInterceptor(TokenInterceptor(config.TokenType, config.Token)),
	}
	if config.Insecure {
		opts = append(opts, grpc.WithInsecure())
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{ServerName: config.Host})))
	}
	opts = append(opts, extra...)

	conn, err := grpc.DialContext(ctx, config.Target(), opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to dial %s", config.Target())
	}
	log.WithField("module", "remote").Debugf("Connected to %s (insecure=%v)", config.Target(), config.Insecure)
	return NewClient(conn, log), nil
}

func NewClient(conn *grpc.ClientConn, log sodb.Logger) *Client {
	return &Client{conn: conn, log: log.WithField("module", "remote")}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, service, method string, in, out interface{}) error {
	if err := c.conn.Invoke(ctx, fullMethod(service, method), in, out); err != nil {
		return errors.Wrap(err, method)
	}
	return nil
}

func (c *Client) ListProjectDatasets(ctx context.Context, projectID string) ([]sodb.Dataset, error) {
	out := &GetProjectDatasetsResponse{}
	if err := c.invoke(ctx, ProjectServiceName, "GetProjectDatasets", &GetProjectDatasetsRequest{ID: projectID}, out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

func (c *Client) CreateProject(ctx context.Context, name string) (string, error) {
	out := &CreateProjectResponse{}
	if err := c.invoke(ctx, ProjectServiceName, "CreateProject", &CreateProjectRequest{Name: name}, out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) ListDatasetObjectGroups(ctx context.Context, datasetID string, page sodb.PageRequest) ([]sodb.ObjectGroup, error) {
	in := &GetDatasetObjectGroupsRequest{ID: datasetID, PageRequest: &page}
	out := &GetDatasetObjectGroupsResponse{}
	if err := c.invoke(ctx, DatasetServiceName, "GetDatasetObjectGroups", in, out); err != nil {
		return nil, err
	}
	return out.ObjectGroups, nil
}

func (c *Client) CreateDataset(ctx context.Context, projectID, name string) (string, error) {
	out := &CreateDatasetResponse{}
	if err := c.invoke(ctx, DatasetServiceName, "CreateDataset", &CreateDatasetRequest{ProjectID: projectID, Name: name}, out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) ListObjectGroup(ctx context.Context, groupID string) (*sodb.ObjectGroup, error) {
	out := &GetObjectGroupResponse{}
	if err := c.invoke(ctx, DatasetObjectsServiceName, "GetObjectGroup", &GetObjectGroupRequest{ID: groupID}, out); err != nil {
		return nil, err
	}
	if out.ObjectGroup == nil {
		return nil, errors.Errorf("GetObjectGroup: empty response for %s", groupID)
	}
	return out.ObjectGroup, nil
}

func (c *Client) CreateObjectGroup(ctx context.Context, req *sodb.CreateObjectGroupRequest) (*sodb.CreateObjectGroupResponse, error) {
	out := &sodb.CreateObjectGroupResponse{}
	if err := c.invoke(ctx, DatasetObjectsServiceName, "CreateObjectGroup", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateDownloadLink(ctx context.Context, objectID string) (*sodb.DownloadLink, error) {
	out := &sodb.DownloadLink{}
	if err := c.invoke(ctx, ObjectLoadServiceName, "CreateDownloadLink", &CreateDownloadLinkRequest{ID: objectID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateUploadLink(ctx context.Context, objectID string) (string, error) {
	out := &CreateUploadLinkResponse{}
	if err := c.invoke(ctx, ObjectLoadServiceName, "CreateUploadLink", &CreateUploadLinkRequest{ID: objectID}, out); err != nil {
		return "", err
	}
	return out.UploadLink, nil
}

func (c *Client) StartMultipartUpload(ctx context.Context, objectID string) error {
	return c.invoke(ctx, ObjectLoadServiceName, "StartMultipartUpload", &StartMultipartUploadRequest{ID: objectID}, &empty.Empty{})
}

func (c *Client) GetMultipartUploadLink(ctx context.Context, objectID string, part int64) (string, error) {
	in := &GetMultipartUploadLinkRequest{ObjectID: objectID, UploadPart: part}
	out := &GetMultipartUploadLinkResponse{}
	if err := c.invoke(ctx, ObjectLoadServiceName, "GetMultipartUploadLink", in, out); err != nil {
		return "", err
	}
	return out.UploadLink, nil
}

func (c *Client) CompleteMultipartUpload(ctx context.Context, objectID string, parts []sodb.UploadPart) error {
	in := &CompleteMultipartUploadRequest{ObjectID: objectID, Parts: parts}
	return c.invoke(ctx, ObjectLoadServiceName, "CompleteMultipartUpload", in, &empty.Empty{})
}

func (c *Client) AbortMultipartUpload(ctx context.Context, objectID string) error {
	return c.invoke(ctx, ObjectLoadServiceName, "AbortMultipartUpload", &AbortMultipartUploadRequest{ObjectID: objectID}, &empty.Empty{})
}
