package localstore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
)

type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO. Path style
	// addressing is used whenever it is set.
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Backend hands out presigned S3 links, so object bytes never pass
// through the local store.
type S3Backend struct {
	svc    *s3.S3
	bucket string
	ttl    time.Duration
	log    sodb.Logger
}

func NewS3Backend(config S3Config, ttl time.Duration, log sodb.Logger) (*S3Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 backend needs a bucket")
	}
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.Region == "" {
		awsConfig.Region = aws.String("us-east-1")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create AWS session")
	}
	return &S3Backend{
		svc:    s3.New(sess),
		bucket: config.Bucket,
		ttl:    ttl,
		log:    log.WithField("module", "s3backend"),
	}, nil
}

func (b *S3Backend) DownloadLink(ctx context.Context, key string) (string, error) {
	req, _ := b.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(b.ttl)
	return url, errors.Wrap(err, "Failed to presign download")
}

func (b *S3Backend) UploadLink(ctx context.Context, key string) (string, error) {
	req, _ := b.svc.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(b.ttl)
	return url, errors.Wrap(err, "Failed to presign upload")
}

func (b *S3Backend) StartMultipart(ctx context.Context, key string) (string, error) {
	out, err := b.svc.CreateMultipartUploadWithContext(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", errors.Wrap(err, "Failed to create multipart upload")
	}
	return aws.StringValue(out.UploadId), nil
}

func (b *S3Backend) PartLink(ctx context.Context, key, uploadID string, part int64) (string, error) {
	req, _ := b.svc.UploadPartRequest(&s3.UploadPartInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int64(part),
	})
	url, err := req.Presign(b.ttl)
	return url, errors.Wrap(err, "Failed to presign part upload")
}

func (b *S3Backend) CompleteMultipart(ctx context.Context, key, uploadID string, parts []sodb.UploadPart) error {
	completed := make([]*s3.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, &s3.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int64(p.PartNumber),
		})
	}
	_, err := b.svc.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: completed},
	})
	return errors.Wrap(err, "Failed to complete multipart upload")
}

func (b *S3Backend) AbortMultipart(ctx context.Context, key, uploadID string) error {
	_, err := b.svc.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return errors.Wrap(err, "Failed to abort multipart upload")
}
