package transfer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize    = 500
	DefaultParallelism = 4
)

// Resource is the kind of remote root a load starts from.
type Resource int

const (
	ResourceProject Resource = iota
	ResourceDataset
	ResourceDatasetVersion
	ResourceObjectGroup
)

func (r Resource) String() string {
	switch r {
	case ResourceProject:
		return "project"
	case ResourceDataset:
		return "dataset"
	case ResourceDatasetVersion:
		return "datasetversion"
	case ResourceObjectGroup:
		return "objectgroup"
	default:
		return "unknown"
	}
}

func ParseResource(s string) (Resource, error) {
	switch strings.ToLower(s) {
	case "project":
		return ResourceProject, nil
	case "dataset":
		return ResourceDataset, nil
	case "datasetversion":
		return ResourceDatasetVersion, nil
	case "objectgroup", "object_group":
		return ResourceObjectGroup, nil
	default:
		return 0, &Error{Kind: KindConfig, Op: "parse resource",
			Err: errors.Errorf("unknown resource %q", s)}
	}
}

// Lister is the listing subset of sodb.ResourceService.
type Lister interface {
	ListProjectDatasets(ctx context.Context, projectID string) ([]sodb.Dataset, error)
	ListDatasetObjectGroups(ctx context.Context, datasetID string, page sodb.PageRequest) ([]sodb.ObjectGroup, error)
	ListObjectGroup(ctx context.Context, groupID string) (*sodb.ObjectGroup, error)
}

type EnumeratorConfig struct {
	PageSize int
	// Parallelism bounds the datasets of a project enumerated at once.
	Parallelism int
	Retry       RetryPolicy
}

// Enumerator flattens a remote hierarchy into Items.
type Enumerator struct {
	lister Lister
	config EnumeratorConfig
	log    sodb.Logger
}

func NewEnumerator(lister Lister, config EnumeratorConfig, log sodb.Logger) *Enumerator {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultParallelism
	}
	return &Enumerator{
		lister: lister,
		config: config,
		log:    log.WithField("module", "enumerator"),
	}
}

// Run enumerates the resource onto q and closes q when done, whether or not
// enumeration succeeded. Items already queued stay queued on failure.
func (e *Enumerator) Run(ctx context.Context, res Resource, id string, q *Queue) error {
	defer q.Close()

	switch res {
	case ResourceProject:
		return e.Project(ctx, id, q)
	case ResourceDataset:
		return e.Dataset(ctx, id, q)
	case ResourceObjectGroup:
		return e.ObjectGroup(ctx, id, q)
	default:
		return &Error{Kind: KindConfig, Op: "enumerate", Err: errors.Errorf("%s is not supported", res)}
	}
}

// Project enumerates the datasets of a project concurrently. The first
// failing dataset cancels its siblings.
func (e *Enumerator) Project(ctx context.Context, projectID string, q *Queue) error {
	var datasets []sodb.Dataset
	err := e.config.Retry.Do(ctx, e.log, "list project datasets", func() (err error) {
		datasets, err = e.lister.ListProjectDatasets(ctx, projectID)
		return err
	})
	if err != nil {
		return &Error{Kind: KindRemote, Op: "list project datasets", Err: errors.Wrapf(err, "project %s", projectID)}
	}
	e.log.WithField("project", projectID).Debugf("Enumerating %d datasets", len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Parallelism)
	for _, ds := range datasets {
		datasetID := ds.ID
		g.Go(func() error {
			return e.Dataset(gctx, datasetID, q)
		})
	}
	return g.Wait()
}

// Dataset pages through the object groups of a dataset. The cursor is the
// id of the last object seen; a page shorter than the page size ends the
// listing, a full page always triggers another request.
func (e *Enumerator) Dataset(ctx context.Context, datasetID string, q *Queue) error {
	log := e.log.WithField("dataset", datasetID)
	page := sodb.PageRequest{PageSize: uint64(e.config.PageSize)}

	for {
		var groups []sodb.ObjectGroup
		err := e.config.Retry.Do(ctx, log, "list dataset object groups", func() (err error) {
			groups, err = e.lister.ListDatasetObjectGroups(ctx, datasetID, page)
			return err
		})
		if err != nil {
			return &Error{Kind: KindRemote, Op: "list dataset object groups",
				Err: errors.Wrapf(err, "dataset %s after %q", datasetID, page.LastUUID)}
		}

		cursor := page.LastUUID
		for i := range groups {
			last, err := e.sendGroup(ctx, &groups[i], q)
			if err != nil {
				return err
			}
			if last != "" {
				cursor = last
			}
		}
		log.WithField("cursor", cursor).Debugf("Listed %d object groups", len(groups))

		if len(groups) < e.config.PageSize {
			return nil
		}
		if cursor == page.LastUUID {
			return &Error{Kind: KindRemote, Op: "list dataset object groups",
				Err: errors.Errorf("dataset %s: full page without objects, cursor cannot advance", datasetID)}
		}
		page.LastUUID = cursor
	}
}

// ObjectGroup enumerates a single object group with one listing call.
func (e *Enumerator) ObjectGroup(ctx context.Context, groupID string, q *Queue) error {
	var group *sodb.ObjectGroup
	err := e.config.Retry.Do(ctx, e.log, "list object group", func() (err error) {
		group, err = e.lister.ListObjectGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return &Error{Kind: KindRemote, Op: "list object group", Err: errors.Wrapf(err, "object group %s", groupID)}
	}
	_, err = e.sendGroup(ctx, group, q)
	return err
}

// sendGroup queues the objects of group in listing order and returns the id
// of the last one.
func (e *Enumerator) sendGroup(ctx context.Context, group *sodb.ObjectGroup, q *Queue) (string, error) {
	last := ""
	for _, obj := range group.Objects {
		if err := q.Send(ctx, Item{Object: obj, GroupName: group.Name}); err != nil {
			return last, err
		}
		last = obj.ID
	}
	return last, nil
}
