package transfer

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/layout"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 10

	// suffix of a download in flight, renamed away once the body is complete
	partialSuffix = ".part"
	filePerm      = 0644
	writeBufSize  = 64 * 1024
)

// Linker resolves signed download links.
type Linker interface {
	CreateDownloadLink(ctx context.Context, objectID string) (*sodb.DownloadLink, error)
}

type DownloadConfig struct {
	BasePath   string
	Strategy   layout.Strategy
	Workers    int
	Retry      RetryPolicy
	HTTPClient *http.Client
}

// Downloader is a fixed size pool of workers draining a Queue to disk.
type Downloader struct {
	linker   Linker
	config   DownloadConfig
	log      sodb.Logger
	Progress *Progress
}

func NewDownloader(linker Linker, config DownloadConfig, log sodb.Logger) *Downloader {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.Strategy == nil {
		config.Strategy = layout.Canonical{}
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &Downloader{
		linker:   linker,
		config:   config,
		log:      log.WithField("module", "downloader"),
		Progress: &Progress{},
	}
}

// Load enumerates a remote resource and downloads every object of it. A
// failing enumeration stops producing but the objects queued so far are
// still downloaded. The enumeration error comes first in the result.
func (d *Downloader) Load(ctx context.Context, enum *Enumerator, res Resource, id string, queueSize int) error {
	q := NewQueue(queueSize)

	enumDone := make(chan error, 1)
	go func() {
		enumDone <- enum.Run(ctx, res, id, q)
	}()

	dlErr := d.Run(ctx, q)
	enumErr := <-enumDone

	switch {
	case enumErr == nil:
		return dlErr
	case dlErr == nil:
		return enumErr
	default:
		return &MultiError{Errors: []error{enumErr, dlErr}}
	}
}

// Run starts the workers and blocks until q is closed and drained. A
// failed item does not stop the pool; failures are returned together as a
// *MultiError. If ctx is cancelled workers stop at the next item and Run
// returns ctx.Err().
func (d *Downloader) Run(ctx context.Context, q *Queue) error {
	failures := &MultiError{}

	var g errgroup.Group
	for i := 0; i < d.config.Workers; i++ {
		worker := i
		g.Go(func() error {
			log := d.log.WithField("worker", worker)
			for item := range q.Receive() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := d.download(ctx, log, item); err != nil {
					d.Progress.objectFailed()
					log.WithField("object_id", item.Object.ID).WithError(err).Error("Download failed")
					failures.add(err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return failures.ErrorOrNil()
}

func (d *Downloader) download(ctx context.Context, log sodb.Logger, item Item) error {
	obj := item.Object
	log = log.WithField("object_id", obj.ID)

	var link *sodb.DownloadLink
	err := d.config.Retry.Do(ctx, log, "create download link", func() (err error) {
		link, err = d.linker.CreateDownloadLink(ctx, obj.ID)
		return err
	})
	if err != nil {
		return &Error{Kind: KindRemote, Op: "create download link", ObjectID: obj.ID, Err: err}
	}
	if link.Object != nil && link.Object.ID == obj.ID {
		obj = *link.Object
	}

	dir := d.config.Strategy.ObjectGroupPath(d.config.BasePath, &obj, item.GroupName)
	path := d.config.Strategy.FilePath(dir, &obj)
	if err := contained(d.config.BasePath, path); err != nil {
		return &Error{Kind: KindRemote, Op: "resolve path", ObjectID: obj.ID, Path: path, Err: err}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &Error{Kind: KindIO, Op: "create directory", ObjectID: obj.ID, Path: dir, Err: err}
	}

	var written int64
	err = d.config.Retry.Do(ctx, log, "fetch object", func() (err error) {
		written, err = d.fetch(ctx, link.URL, path)
		return err
	})
	if err != nil {
		if te, ok := err.(*Error); ok {
			te.ObjectID = obj.ID
		}
		return err
	}

	d.Progress.addBytes(written)
	d.Progress.objectDone()
	log.WithField("group", item.GroupName).WithField("path", path).Debugf("Downloaded %d bytes", written)
	return nil
}

// contained fails unless path names a file strictly below base. Group and
// file names come from the server.
func contained(base, path string) error {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Errorf("%s escapes %s", path, base)
	}
	return nil
}

// fetch streams the body of url into path. The body goes to a uniquely named
// sibling partial file first so path never holds a truncated object, even
// when two objects of a group share a file name.
func (d *Downloader) fetch(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &Error{Kind: KindTransport, Op: "GET", Path: path, Err: err}
	}
	resp, err := d.config.HTTPClient.Do(req)
	if err != nil {
		return 0, &Error{Kind: KindTransport, Op: "GET", Path: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &Error{Kind: KindTransport, Op: "GET", Path: path, StatusCode: resp.StatusCode,
			Err: errors.Errorf("unexpected status %s", resp.Status)}
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*"+partialSuffix)
	if err != nil {
		return 0, &Error{Kind: KindIO, Op: "create file", Path: path, Err: err}
	}
	tmp := f.Name()
	if err := f.Chmod(filePerm); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, &Error{Kind: KindIO, Op: "create file", Path: tmp, Err: err}
	}

	n, err := stream(f, resp.Body)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		if te, ok := err.(*Error); ok {
			te.Path = path
		}
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, &Error{Kind: KindIO, Op: "close file", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, &Error{Kind: KindIO, Op: "rename file", Path: path, Err: err}
	}
	return n, nil
}

// stream writes each chunk of body as it arrives and flushes once at the
// end. Read failures are transport errors, write failures io errors.
func stream(f *os.File, body io.Reader) (int64, error) {
	w := bufio.NewWriterSize(f, writeBufSize)
	buf := make([]byte, writeBufSize)

	var total int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return total, &Error{Kind: KindIO, Op: "write file", Err: err}
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, &Error{Kind: KindTransport, Op: "read body", Err: rerr}
		}
	}

	if err := w.Flush(); err != nil {
		return total, &Error{Kind: KindIO, Op: "flush file", Err: err}
	}
	return total, nil
}
