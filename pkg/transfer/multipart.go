package transfer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
)

const (
	// DefaultChunkSize is the multipart threshold and the size of every part
	// but the last.
	DefaultChunkSize int64 = 5 * 1024 * 1024

	abortTimeout = 30 * time.Second
)

// UploadService is the upload subset of sodb.ResourceService.
type UploadService interface {
	CreateUploadLink(ctx context.Context, objectID string) (string, error)
	StartMultipartUpload(ctx context.Context, objectID string) error
	GetMultipartUploadLink(ctx context.Context, objectID string, part int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, objectID string, parts []sodb.UploadPart) error
	AbortMultipartUpload(ctx context.Context, objectID string) error
}

type UploadConfig struct {
	ChunkSize  int64
	Retry      RetryPolicy
	HTTPClient *http.Client
}

// Uploader puts local files into pre-created objects.
type Uploader struct {
	svc      UploadService
	config   UploadConfig
	log      sodb.Logger
	Progress *Progress
}

func NewUploader(svc UploadService, config UploadConfig, log sodb.Logger) *Uploader {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &Uploader{
		svc:      svc,
		config:   config,
		log:      log.WithField("module", "uploader"),
		Progress: &Progress{},
	}
}

// UploadFile uploads the file at path into the object objectID. Files smaller
// than the chunk size go up in a single PUT, everything else as a multipart
// upload whose session is aborted if any part fails.
func (u *Uploader) UploadFile(ctx context.Context, path string, objectID string) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Kind: KindConfig, Op: "open file", Path: path, ObjectID: objectID, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &Error{Kind: KindConfig, Op: "stat file", Path: path, ObjectID: objectID, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &Error{Kind: KindConfig, Op: "open file", Path: path, ObjectID: objectID,
			Err: errors.New("not a regular file")}
	}

	log := u.log.WithField("object_id", objectID).WithField("path", path)
	size := info.Size()
	if size < u.config.ChunkSize {
		err = u.uploadSingle(ctx, log, f, size, objectID)
	} else {
		err = u.uploadMultipart(ctx, log, f, size, objectID)
	}
	if err != nil {
		u.Progress.objectFailed()
		if te, ok := err.(*Error); ok {
			te.Path = path
			te.ObjectID = objectID
		}
		return err
	}

	u.Progress.addBytes(size)
	u.Progress.objectDone()
	log.Debugf("Uploaded %d bytes", size)
	return nil
}

func (u *Uploader) uploadSingle(ctx context.Context, log sodb.Logger, f *os.File, size int64, objectID string) error {
	var link string
	err := u.config.Retry.Do(ctx, log, "create upload link", func() (err error) {
		link, err = u.svc.CreateUploadLink(ctx, objectID)
		return err
	})
	if err != nil {
		return newError(KindRemote, "create upload link", err)
	}

	return u.config.Retry.Do(ctx, log, "upload object", func() error {
		_, err := u.put(ctx, link, io.NewSectionReader(f, 0, size), size)
		return err
	})
}

// uploadMultipart reads f once from start to end. Part numbers start at 1
// and follow read order.
func (u *Uploader) uploadMultipart(ctx context.Context, log sodb.Logger, f *os.File, size int64, objectID string) (err error) {
	err = u.config.Retry.Do(ctx, log, "start multipart upload", func() error {
		return u.svc.StartMultipartUpload(ctx, objectID)
	})
	if err != nil {
		return newError(KindRemote, "start multipart upload", err)
	}
	defer func() {
		if err != nil {
			u.abort(ctx, log, objectID)
		}
	}()

	chunk := u.config.ChunkSize
	buf := make([]byte, chunk)
	parts := make([]sodb.UploadPart, 0, (size+chunk-1)/chunk)
	remaining := size
	var part int64

	for remaining > 0 {
		part++
		n := chunk
		if remaining < n {
			n = remaining
		}
		plog := log.WithField("part", part)

		if _, err := io.ReadFull(f, buf[:n]); err != nil {
			return &Error{Kind: KindIO, Op: "read part", Err: errors.Wrapf(err, "part %d", part)}
		}

		var link string
		err := u.config.Retry.Do(ctx, plog, "get part upload link", func() (err error) {
			link, err = u.svc.GetMultipartUploadLink(ctx, objectID, part)
			return err
		})
		if err != nil {
			return newError(KindRemote, "get part upload link", errors.Wrapf(err, "part %d", part))
		}

		var etag string
		err = u.config.Retry.Do(ctx, plog, "upload part", func() (err error) {
			etag, err = u.put(ctx, link, bytes.NewReader(buf[:n]), n)
			return err
		})
		if err != nil {
			return err
		}
		if etag == "" {
			return &Error{Kind: KindTransport, Op: "upload part",
				Err: errors.Errorf("part %d: response carries no ETag", part)}
		}

		parts = append(parts, sodb.UploadPart{PartNumber: part, ETag: etag})
		remaining -= n
		plog.Debugf("Uploaded part of %d bytes", n)
	}

	if err := checkParts(parts); err != nil {
		return err
	}

	err = u.config.Retry.Do(ctx, log, "complete multipart upload", func() error {
		return u.svc.CompleteMultipartUpload(ctx, objectID, parts)
	})
	if err != nil {
		return newError(KindRemote, "complete multipart upload", err)
	}
	return nil
}

// abort runs even when ctx is already cancelled.
func (u *Uploader) abort(ctx context.Context, log sodb.Logger, objectID string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := u.svc.AbortMultipartUpload(actx, objectID); err != nil {
		log.WithError(err).Warn("Failed to abort multipart upload")
		return
	}
	log.Info("Aborted multipart upload")
}

// put sends body to a signed link and returns the ETag of the response.
func (u *Uploader) put(ctx context.Context, link string, body io.Reader, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, link, body)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: "PUT", Err: err}
	}
	req.ContentLength = size

	resp, err := u.config.HTTPClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: "PUT", Err: err}
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: KindTransport, Op: "PUT", StatusCode: resp.StatusCode,
			Err: errors.Errorf("unexpected status %s", resp.Status)}
	}
	return resp.Header.Get("ETag"), nil
}

// checkParts verifies the manifest is numbered 1..n without gaps.
func checkParts(parts []sodb.UploadPart) error {
	for i, p := range parts {
		if p.PartNumber != int64(i+1) {
			return &Error{Kind: KindConfig, Op: "complete multipart upload",
				Err: errors.Errorf("part %d at position %d, manifest is not contiguous", p.PartNumber, i+1)}
		}
	}
	return nil
}
