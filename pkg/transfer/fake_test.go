package transfer_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func nullLogger() sodb.Logger {
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log
}

// fakeLister serves an in-memory hierarchy with the same cursor semantics
// as the remote service: a page starts after the group holding LastUUID.
type fakeLister struct {
	mu        sync.Mutex
	datasets  map[string][]sodb.Dataset
	groups    map[string][]sodb.ObjectGroup
	pageCalls map[string]int
	// failAfter makes the n-th page request of a dataset fail, 0 disables.
	failAfter int
	// unavailable makes the first call of every listing fail with a
	// retryable status.
	unavailable map[string]bool
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		datasets:    make(map[string][]sodb.Dataset),
		groups:      make(map[string][]sodb.ObjectGroup),
		pageCalls:   make(map[string]int),
		unavailable: make(map[string]bool),
	}
}

// addDataset adds a dataset holding one group per entry of sizes, each with
// that many objects.
func (f *fakeLister) addDataset(projectID, datasetID string, sizes ...int) []string {
	f.datasets[projectID] = append(f.datasets[projectID], sodb.Dataset{ID: datasetID, ProjectID: projectID})

	var ids []string
	for g, n := range sizes {
		group := sodb.ObjectGroup{
			ID:        fmt.Sprintf("%s-g%d", datasetID, g),
			DatasetID: datasetID,
			Name:      fmt.Sprintf("group%d", g),
		}
		for o := 0; o < n; o++ {
			obj := sodb.Object{
				ID:        fmt.Sprintf("%s-g%d-o%d", datasetID, g, o),
				ProjectID: projectID,
				DatasetID: datasetID,
				Filename:  fmt.Sprintf("file%d", o),
				Filetype:  "bin",
			}
			group.Objects = append(group.Objects, obj)
			ids = append(ids, obj.ID)
		}
		f.groups[datasetID] = append(f.groups[datasetID], group)
	}
	return ids
}

func (f *fakeLister) calls(datasetID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls[datasetID]
}

func (f *fakeLister) ListProjectDatasets(ctx context.Context, projectID string) ([]sodb.Dataset, error) {
	ds, ok := f.datasets[projectID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "project %s not found", projectID)
	}
	return ds, nil
}

func (f *fakeLister) ListDatasetObjectGroups(ctx context.Context, datasetID string, page sodb.PageRequest) ([]sodb.ObjectGroup, error) {
	f.mu.Lock()
	f.pageCalls[datasetID]++
	n := f.pageCalls[datasetID]
	flaky := f.unavailable[datasetID]
	f.unavailable[datasetID] = false
	f.mu.Unlock()

	if flaky {
		return nil, status.Error(codes.Unavailable, "try again")
	}
	if f.failAfter > 0 && n >= f.failAfter {
		return nil, errors.New("listing exploded")
	}

	groups := f.groups[datasetID]
	start := 0
	if page.LastUUID != "" {
		start = -1
		for i, g := range groups {
			for _, o := range g.Objects {
				if o.ID == page.LastUUID {
					start = i + 1
				}
			}
		}
		if start < 0 {
			return nil, status.Errorf(codes.InvalidArgument, "unknown cursor %s", page.LastUUID)
		}
	}

	end := start + int(page.PageSize)
	if end > len(groups) {
		end = len(groups)
	}
	return groups[start:end], nil
}

func (f *fakeLister) ListObjectGroup(ctx context.Context, groupID string) (*sodb.ObjectGroup, error) {
	for _, groups := range f.groups {
		for i := range groups {
			if groups[i].ID == groupID {
				return &groups[i], nil
			}
		}
	}
	return nil, status.Errorf(codes.NotFound, "object group %s not found", groupID)
}
