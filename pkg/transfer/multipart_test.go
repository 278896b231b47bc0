package transfer_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io/ioutil"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sciobjsdb/sodb/pkg/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// partStore records every PUT it receives and plays the multipart side of
// the remote service.
type partStore struct {
	*httptest.Server

	mu        sync.Mutex
	puts      map[string][]byte
	calls     []string
	completed []sodb.UploadPart
	// status returned for part PUTs, 0 means 200
	partStatus int
	noETag     bool
}

func newPartStore(t *testing.T) *partStore {
	s := &partStore{puts: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/parts/") && s.partStatus != 0 {
			http.Error(w, "denied", s.partStatus)
			return
		}
		s.mu.Lock()
		s.puts[r.URL.Path] = body
		s.mu.Unlock()
		if !s.noETag {
			w.Header().Set("ETag", fmt.Sprintf("%q", fmt.Sprintf("%x", md5.Sum(body))))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *partStore) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *partStore) CreateUploadLink(ctx context.Context, objectID string) (string, error) {
	s.record("link")
	return s.URL + "/objects/" + objectID, nil
}

func (s *partStore) StartMultipartUpload(ctx context.Context, objectID string) error {
	s.record("start")
	return nil
}

func (s *partStore) GetMultipartUploadLink(ctx context.Context, objectID string, part int64) (string, error) {
	s.record("part" + strconv.FormatInt(part, 10))
	return fmt.Sprintf("%s/parts/%d", s.URL, part), nil
}

func (s *partStore) CompleteMultipartUpload(ctx context.Context, objectID string, parts []sodb.UploadPart) error {
	s.record("complete")
	s.completed = parts
	return nil
}

func (s *partStore) AbortMultipartUpload(ctx context.Context, objectID string) error {
	s.record("abort")
	return nil
}

func writeRandom(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	return path, data
}

func TestMultipartParts(t *testing.T) {
	const chunk = 10
	for _, size := range []int{10, 11, 35, 40, 99} {
		store := newPartStore(t)
		up := transfer.NewUploader(store, transfer.UploadConfig{ChunkSize: chunk}, nullLogger())

		path, data := writeRandom(t, size)
		require.NoError(t, up.UploadFile(context.Background(), path, "o1"))

		nparts := (size + chunk - 1) / chunk
		require.Len(t, store.completed, nparts, "size %d", size)

		var joined []byte
		for i, part := range store.completed {
			assert.Equal(t, int64(i+1), part.PartNumber)
			body := store.puts[fmt.Sprintf("/parts/%d", part.PartNumber)]
			assert.Equal(t, fmt.Sprintf("%q", fmt.Sprintf("%x", md5.Sum(body))), part.ETag)
			joined = append(joined, body...)
		}
		assert.Equal(t, size, len(joined))
		assert.True(t, bytes.Equal(data, joined))

		assert.Equal(t, "start", store.calls[0])
		assert.Equal(t, "complete", store.calls[len(store.calls)-1])
		assert.NotContains(t, store.calls, "link")
		assert.Equal(t, uint64(size), up.Progress.Bytes())
	}
}

func TestSingleShot(t *testing.T) {
	for _, size := range []int{0, 1, 9} {
		store := newPartStore(t)
		up := transfer.NewUploader(store, transfer.UploadConfig{ChunkSize: 10}, nullLogger())

		path, data := writeRandom(t, size)
		require.NoError(t, up.UploadFile(context.Background(), path, "o1"))

		assert.Equal(t, []string{"link"}, store.calls)
		assert.True(t, bytes.Equal(data, store.puts["/objects/o1"]))
	}
}

func TestDefaultChunkSize(t *testing.T) {
	store := newPartStore(t)
	up := transfer.NewUploader(store, transfer.UploadConfig{}, nullLogger())

	path, _ := writeRandom(t, int(transfer.DefaultChunkSize)+1)
	require.NoError(t, up.UploadFile(context.Background(), path, "o1"))

	require.Len(t, store.completed, 2)
	assert.Len(t, store.puts["/parts/1"], int(transfer.DefaultChunkSize))
	assert.Len(t, store.puts["/parts/2"], 1)
}

func TestMultipartAbortOnPutFailure(t *testing.T) {
	store := newPartStore(t)
	store.partStatus = http.StatusForbidden
	up := transfer.NewUploader(store, transfer.UploadConfig{ChunkSize: 10}, nullLogger())

	path, _ := writeRandom(t, 25)
	err := up.UploadFile(context.Background(), path, "o1")
	require.Error(t, err)

	var te *transfer.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, transfer.KindTransport, te.Kind)
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
	assert.Equal(t, "o1", te.ObjectID)
	assert.Equal(t, path, te.Path)

	assert.Equal(t, []string{"start", "part1", "abort"}, store.calls)
	assert.Nil(t, store.completed)
	assert.Equal(t, uint64(1), up.Progress.Failed())
}

func TestMultipartMissingETag(t *testing.T) {
	store := newPartStore(t)
	store.noETag = true
	up := transfer.NewUploader(store, transfer.UploadConfig{ChunkSize: 10}, nullLogger())

	path, _ := writeRandom(t, 20)
	err := up.UploadFile(context.Background(), path, "o1")
	require.Error(t, err)
	assert.True(t, transfer.IsKind(err, transfer.KindTransport))
	assert.Contains(t, err.Error(), "ETag")
	assert.Equal(t, []string{"start", "part1", "abort"}, store.calls)
}

func TestUploadMissingFile(t *testing.T) {
	store := newPartStore(t)
	up := transfer.NewUploader(store, transfer.UploadConfig{}, nullLogger())

	err := up.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing"), "o1")
	assert.True(t, transfer.IsKind(err, transfer.KindConfig))

	err = up.UploadFile(context.Background(), t.TempDir(), "o1")
	assert.True(t, transfer.IsKind(err, transfer.KindConfig))
	assert.Empty(t, store.calls)
}

func TestUploadGroup(t *testing.T) {
	store := newPartStore(t)
	up := transfer.NewUploader(store, transfer.UploadConfig{ChunkSize: 1024}, nullLogger())

	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, fmt.Sprintf("f%d", i))
		require.NoError(t, ioutil.WriteFile(path, []byte(strings.Repeat("x", i)), 0644))
		paths = append(paths, path)
	}
	// the last object has no local file
	paths = append(paths, "")
	paths[3] = filepath.Join(dir, "missing")

	resp := &sodb.CreateObjectGroupResponse{ObjectGroupID: "g1"}
	for i := range paths {
		resp.ObjectLinks = append(resp.ObjectLinks, sodb.ObjectLink{Index: int64(i), ObjectID: fmt.Sprintf("o%d", i)})
	}

	err := up.UploadGroup(context.Background(), resp, paths, 2)
	require.Error(t, err)
	var me *transfer.MultiError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 1, me.Len())
	assert.True(t, transfer.IsKind(me.Errors[0], transfer.KindConfig))

	assert.Equal(t, uint64(4), up.Progress.Objects())
	assert.Len(t, store.puts, 4)
	assert.Equal(t, "xx", string(store.puts["/objects/o2"]))
	assert.NotContains(t, store.puts, "/objects/o5")
}

func TestUploadGroupBadIndex(t *testing.T) {
	store := newPartStore(t)
	up := transfer.NewUploader(store, transfer.UploadConfig{}, nullLogger())

	resp := &sodb.CreateObjectGroupResponse{ObjectLinks: []sodb.ObjectLink{{Index: 3, ObjectID: "o3"}}}
	err := up.UploadGroup(context.Background(), resp, []string{"a"}, 0)
	assert.True(t, transfer.IsKind(err, transfer.KindRemote))
	assert.Empty(t, store.calls)
}
