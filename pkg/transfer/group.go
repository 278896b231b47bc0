package transfer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"golang.org/x/sync/errgroup"
)

// UploadGroup uploads the local files of a freshly created object group.
// paths is indexed like the objects of the creation request, and objects
// whose path is empty are left without content. Every file is attempted;
// the failures come back as a *MultiError.
func (u *Uploader) UploadGroup(ctx context.Context, resp *sodb.CreateObjectGroupResponse, paths []string, workers int) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	for _, link := range resp.ObjectLinks {
		if link.Index < 0 || link.Index >= int64(len(paths)) {
			return newError(KindRemote, "upload object group",
				errors.Errorf("object link index %d out of range (%d objects)", link.Index, len(paths)))
		}
	}

	errs := &MultiError{}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, link := range resp.ObjectLinks {
		path := paths[link.Index]
		if path == "" {
			continue
		}
		objectID := link.ObjectID
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := u.UploadFile(ctx, path, objectID); err != nil {
				errs.add(err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errs.ErrorOrNil()
}
