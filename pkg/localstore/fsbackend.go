package localstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
)

const (
	objectsDir = "objects"
	uploadsDir = "uploads"
)

// FSBackend keeps objects below a directory and serves them over plain
// HTTP. Every request must carry a valid signature from the same backend.
type FSBackend struct {
	dir     string
	baseURL string
	signer  *signer
	log     sodb.Logger

	m       sync.Mutex
	uploads map[string]string // upload id -> key
}

func NewFSBackend(dir, baseURL string, secret []byte, ttl time.Duration, log sodb.Logger) (*FSBackend, error) {
	for _, sub := range []string{objectsDir, uploadsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, errors.Wrap(err, "Failed to create local store directory")
		}
	}
	return &FSBackend{
		dir:     dir,
		baseURL: baseURL,
		signer:  newSigner(secret, ttl),
		log:     log.WithField("module", "fsbackend"),
		uploads: make(map[string]string),
	}, nil
}

func (b *FSBackend) objectPath(key string) string {
	return filepath.Join(b.dir, objectsDir, filepath.FromSlash(key))
}

func (b *FSBackend) partPath(uploadID string, part int64) string {
	return filepath.Join(b.dir, uploadsDir, uploadID, strconv.FormatInt(part, 10))
}

func (b *FSBackend) DownloadLink(ctx context.Context, key string) (string, error) {
	if _, err := os.Stat(b.objectPath(key)); err != nil {
		return "", errors.Wrapf(err, "object %s has no content", key)
	}
	return b.signer.sign(b.baseURL, http.MethodGet, "/objects/"+key), nil
}

func (b *FSBackend) UploadLink(ctx context.Context, key string) (string, error) {
	return b.signer.sign(b.baseURL, http.MethodPut, "/objects/"+key), nil
}

func (b *FSBackend) StartMultipart(ctx context.Context, key string) (string, error) {
	uploadID := uuid.New().String()
	if err := os.MkdirAll(filepath.Join(b.dir, uploadsDir, uploadID), 0755); err != nil {
		return "", errors.Wrap(err, "Failed to create upload directory")
	}
	b.m.Lock()
	b.uploads[uploadID] = key
	b.m.Unlock()
	return uploadID, nil
}

func (b *FSBackend) upload(key, uploadID string) error {
	b.m.Lock()
	defer b.m.Unlock()
	if owner, ok := b.uploads[uploadID]; !ok || owner != key {
		return errors.Wrapf(errUnknownUpload, "upload %s", uploadID)
	}
	return nil
}

func (b *FSBackend) PartLink(ctx context.Context, key, uploadID string, part int64) (string, error) {
	if err := b.upload(key, uploadID); err != nil {
		return "", err
	}
	if part < 1 {
		return "", errors.Wrapf(errBadManifest, "part number %d", part)
	}
	return b.signer.sign(b.baseURL, http.MethodPut, fmt.Sprintf("/uploads/%s/parts/%d", uploadID, part)), nil
}

// CompleteMultipart concatenates the parts in manifest order. Every part
// must have been uploaded with the ETag the manifest names.
func (b *FSBackend) CompleteMultipart(ctx context.Context, key, uploadID string, parts []sodb.UploadPart) error {
	if err := b.upload(key, uploadID); err != nil {
		return err
	}
	if len(parts) == 0 {
		return errors.Wrap(errBadManifest, "no parts")
	}

	dst := b.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "Failed to create object directory")
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "Failed to create object file")
	}

	for i, p := range parts {
		if p.PartNumber != int64(i+1) {
			out.Close()
			os.Remove(tmp)
			return errors.Wrapf(errBadManifest, "part %d at position %d", p.PartNumber, i+1)
		}
		if err := appendPart(out, b.partPath(uploadID, p.PartNumber), p.ETag); err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "Failed to close object file")
	}
	if err := os.Rename(tmp, dst); err != nil {
		return errors.Wrap(err, "Failed to move object into place")
	}

	b.log.WithField("key", key).Debugf("Completed multipart upload of %d parts", len(parts))
	return b.AbortMultipart(ctx, key, uploadID)
}

func appendPart(out io.Writer, path, etag string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "Failed to read part %s", filepath.Base(path))
	}
	if want := quotedMD5(data); etag != want {
		return errors.Wrapf(errBadManifest, "part %s: etag %s, stored %s", filepath.Base(path), etag, want)
	}
	_, err = out.Write(data)
	return errors.Wrap(err, "Failed to write object file")
}

// AbortMultipart drops the stored parts. Aborting an unknown upload is not
// an error.
func (b *FSBackend) AbortMultipart(ctx context.Context, key, uploadID string) error {
	b.m.Lock()
	delete(b.uploads, uploadID)
	b.m.Unlock()
	return errors.Wrap(os.RemoveAll(filepath.Join(b.dir, uploadsDir, uploadID)), "Failed to remove upload")
}

func quotedMD5(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// Router serves the signed links issued by the backend.
func (b *FSBackend) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(b.checkSignature)

	r.Get("/objects/*", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, b.objectPath(chi.URLParam(r, "*")))
	})

	r.Put("/objects/*", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		etag, err := writeBody(b.objectPath(key), r.Body)
		if err != nil {
			renderError(w, r, http.StatusInternalServerError, "WriteError", err)
			return
		}
		b.log.WithField("key", key).Debug("Stored object")
		w.Header().Set("ETag", etag)
		render.Render(w, r, okResponse)
	})

	r.Put("/uploads/{uploadID}/parts/{part}", func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")
		part, err := strconv.ParseInt(chi.URLParam(r, "part"), 10, 64)
		if err != nil || part < 1 {
			renderError(w, r, http.StatusBadRequest, "InvalidPart", errors.Errorf("invalid part number %q", chi.URLParam(r, "part")))
			return
		}
		b.m.Lock()
		_, ok := b.uploads[uploadID]
		b.m.Unlock()
		if !ok {
			renderError(w, r, http.StatusNotFound, "NoSuchUpload", errUnknownUpload)
			return
		}

		etag, err := writeBody(b.partPath(uploadID, part), r.Body)
		if err != nil {
			renderError(w, r, http.StatusInternalServerError, "WriteError", err)
			return
		}
		w.Header().Set("ETag", etag)
		render.Render(w, r, okResponse)
	})

	return r
}

func (b *FSBackend) checkSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := b.signer.verify(r.Method, r.URL.Path, r.URL.Query()); err != nil {
			renderError(w, r, http.StatusForbidden, "AccessDenied", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeBody stores body at path and returns its quoted MD5.
func writeBody(path string, body io.Reader) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(f, h), body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`, nil
}
