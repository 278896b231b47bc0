package localstore

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend holds object bytes and issues the signed links clients move them
// with. Keys are opaque to the backend.
type Backend interface {
	DownloadLink(ctx context.Context, key string) (string, error)
	UploadLink(ctx context.Context, key string) (string, error)

	StartMultipart(ctx context.Context, key string) (uploadID string, err error)
	PartLink(ctx context.Context, key, uploadID string, part int64) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []sodb.UploadPart) error
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

var (
	errUnknownUpload = errors.New("unknown multipart upload")
	errBadManifest   = errors.New("invalid part manifest")
)

// statusError turns backend failures into gRPC status errors.
func statusError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	cause := errors.Cause(err)
	switch {
	case os.IsExist(cause):
		return status.Error(codes.AlreadyExists, err.Error())
	case os.IsNotExist(cause):
		return status.Error(codes.NotFound, err.Error())
	case os.IsPermission(cause):
		return status.Error(codes.PermissionDenied, err.Error())
	case cause == errUnknownUpload:
		return status.Error(codes.FailedPrecondition, err.Error())
	case cause == errBadManifest:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
