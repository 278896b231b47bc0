package remote

import (
	"context"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"google.golang.org/grpc"
)

const (
	ProjectServiceName        = "sciobjsdb.api.storage.services.v1.ProjectService"
	DatasetServiceName        = "sciobjsdb.api.storage.services.v1.DatasetService"
	DatasetObjectsServiceName = "sciobjsdb.api.storage.services.v1.DatasetObjectsService"
	ObjectLoadServiceName     = "sciobjsdb.api.storage.services.v1.ObjectLoadService"
)

type ProjectServer interface {
	GetProjectDatasets(context.Context, *GetProjectDatasetsRequest) (*GetProjectDatasetsResponse, error)
	CreateProject(context.Context, *CreateProjectRequest) (*CreateProjectResponse, error)
}

type DatasetServer interface {
	GetDatasetObjectGroups(context.Context, *GetDatasetObjectGroupsRequest) (*GetDatasetObjectGroupsResponse, error)
	CreateDataset(context.Context, *CreateDatasetRequest) (*CreateDatasetResponse, error)
}

type DatasetObjectsServer interface {
	GetObjectGroup(context.Context, *GetObjectGroupRequest) (*GetObjectGroupResponse, error)
	CreateObjectGroup(context.Context, *sodb.CreateObjectGroupRequest) (*sodb.CreateObjectGroupResponse, error)
}

type ObjectLoadServer interface {
	CreateDownloadLink(context.Context, *CreateDownloadLinkRequest) (*sodb.DownloadLink, error)
	CreateUploadLink(context.Context, *CreateUploadLinkRequest) (*CreateUploadLinkResponse, error)
	StartMultipartUpload(context.Context, *StartMultipartUploadRequest) (*empty.Empty, error)
	GetMultipartUploadLink(context.Context, *GetMultipartUploadLinkRequest) (*GetMultipartUploadLinkResponse, error)
	CompleteMultipartUpload(context.Context, *CompleteMultipartUploadRequest) (*empty.Empty, error)
	AbortMultipartUpload(context.Context, *AbortMultipartUploadRequest) (*empty.Empty, error)
}

// ResourceServer serves all four services.
type ResourceServer interface {
	ProjectServer
	DatasetServer
	DatasetObjectsServer
	ObjectLoadServer
}

func RegisterProjectServer(s *grpc.Server, srv ProjectServer) {
	s.RegisterService(&projectServiceDesc, srv)
}

func RegisterDatasetServer(s *grpc.Server, srv DatasetServer) {
	s.RegisterService(&datasetServiceDesc, srv)
}

func RegisterDatasetObjectsServer(s *grpc.Server, srv DatasetObjectsServer) {
	s.RegisterService(&datasetObjectsServiceDesc, srv)
}

func RegisterObjectLoadServer(s *grpc.Server, srv ObjectLoadServer) {
	s.RegisterService(&objectLoadServiceDesc, srv)
}

func RegisterResourceServer(s *grpc.Server, srv ResourceServer) {
	RegisterProjectServer(s, srv)
	RegisterDatasetServer(s, srv)
	RegisterDatasetObjectsServer(s, srv)
	RegisterObjectLoadServer(s, srv)
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unary builds the method descriptor of one unary call. It decodes the
// request and runs it through the server interceptor chain.
func unary[Req any, Resp any](service, name string, call func(srv interface{}, ctx context.Context, req *Req) (Resp, error)) grpc.MethodDesc {
	method := fullMethod(service, name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req.(*Req))
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, handler)
		},
	}
}

var projectServiceDesc = grpc.ServiceDesc{
	ServiceName: ProjectServiceName,
	HandlerType: (*ProjectServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ProjectServiceName, "GetProjectDatasets", func(srv interface{}, ctx context.Context, in *GetProjectDatasetsRequest) (*GetProjectDatasetsResponse, error) {
			return srv.(ProjectServer).GetProjectDatasets(ctx, in)
		}),
		unary(ProjectServiceName, "CreateProject", func(srv interface{}, ctx context.Context, in *CreateProjectRequest) (*CreateProjectResponse, error) {
			return srv.(ProjectServer).CreateProject(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

var datasetServiceDesc = grpc.ServiceDesc{
	ServiceName: DatasetServiceName,
	HandlerType: (*DatasetServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(DatasetServiceName, "GetDatasetObjectGroups", func(srv interface{}, ctx context.Context, in *GetDatasetObjectGroupsRequest) (*GetDatasetObjectGroupsResponse, error) {
			return srv.(DatasetServer).GetDatasetObjectGroups(ctx, in)
		}),
		unary(DatasetServiceName, "CreateDataset", func(srv interface{}, ctx context.Context, in *CreateDatasetRequest) (*CreateDatasetResponse, error) {
			return srv.(DatasetServer).CreateDataset(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

var datasetObjectsServiceDesc = grpc.ServiceDesc{
	ServiceName: DatasetObjectsServiceName,
	HandlerType: (*DatasetObjectsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(DatasetObjectsServiceName, "GetObjectGroup", func(srv interface{}, ctx context.Context, in *GetObjectGroupRequest) (*GetObjectGroupResponse, error) {
			return srv.(DatasetObjectsServer).GetObjectGroup(ctx, in)
		}),
		unary(DatasetObjectsServiceName, "CreateObjectGroup", func(srv interface{}, ctx context.Context, in *sodb.CreateObjectGroupRequest) (*sodb.CreateObjectGroupResponse, error) {
			return srv.(DatasetObjectsServer).CreateObjectGroup(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

var objectLoadServiceDesc = grpc.ServiceDesc{
	ServiceName: ObjectLoadServiceName,
	HandlerType: (*ObjectLoadServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ObjectLoadServiceName, "CreateDownloadLink", func(srv interface{}, ctx context.Context, in *CreateDownloadLinkRequest) (*sodb.DownloadLink, error) {
			return srv.(ObjectLoadServer).CreateDownloadLink(ctx, in)
		}),
		unary(ObjectLoadServiceName, "CreateUploadLink", func(srv interface{}, ctx context.Context, in *CreateUploadLinkRequest) (*CreateUploadLinkResponse, error) {
			return srv.(ObjectLoadServer).CreateUploadLink(ctx, in)
		}),
		unary(ObjectLoadServiceName, "StartMultipartUpload", func(srv interface{}, ctx context.Context, in *StartMultipartUploadRequest) (*empty.Empty, error) {
			return srv.(ObjectLoadServer).StartMultipartUpload(ctx, in)
		}),
		unary(ObjectLoadServiceName, "GetMultipartUploadLink", func(srv interface{}, ctx context.Context, in *GetMultipartUploadLinkRequest) (*GetMultipartUploadLinkResponse, error) {
			return srv.(ObjectLoadServer).GetMultipartUploadLink(ctx, in)
		}),
		unary(ObjectLoadServiceName, "CompleteMultipartUpload", func(srv interface{}, ctx context.Context, in *CompleteMultipartUploadRequest) (*empty.Empty, error) {
			return srv.(ObjectLoadServer).CompleteMultipartUpload(ctx, in)
		}),
		unary(ObjectLoadServiceName, "AbortMultipartUpload", func(srv interface{}, ctx context.Context, in *AbortMultipartUploadRequest) (*empty.Empty, error) {
			return srv.(ObjectLoadServer).AbortMultipartUpload(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{},
}
