package localstore_test

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sciobjsdb/sodb/pkg/localstore"
	"github.com/sciobjsdb/sodb/pkg/sodb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the three multipart calls the backend makes.
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	q := r.URL.Query()
	switch {
	case r.Method == http.MethodPost && q.Get("uploadId") == "":
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<InitiateMultipartUploadResult><Bucket>data</Bucket><Key>d1/o1</Key><UploadId>upload-1</UploadId></InitiateMultipartUploadResult>`))
	case r.Method == http.MethodPost:
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<CompleteMultipartUploadResult><Bucket>data</Bucket><Key>d1/o1</Key><ETag>"abc-2"</ETag></CompleteMultipartUploadResult>`))
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3Backend(t *testing.T, endpoint string) *localstore.S3Backend {
	t.Helper()
	b, err := localstore.NewS3Backend(localstore.S3Config{
		Bucket:    "data",
		Region:    "eu-central-1",
		Endpoint:  endpoint,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	}, 5*time.Minute, nullLogger())
	require.NoError(t, err)
	return b
}

func TestS3Presign(t *testing.T) {
	b := newS3Backend(t, "http://127.0.0.1:9000")
	ctx := context.Background()

	for _, link := range []func() (string, error){
		func() (string, error) { return b.DownloadLink(ctx, "d1/o1") },
		func() (string, error) { return b.UploadLink(ctx, "d1/o1") },
	} {
		raw, err := link()
		require.NoError(t, err)
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", u.Host)
		assert.Equal(t, "/data/d1/o1", u.Path)
		assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
		assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	}

	raw, err := b.PartLink(ctx, "d1/o1", "upload-1", 3)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "3", u.Query().Get("partNumber"))
	assert.Equal(t, "upload-1", u.Query().Get("uploadId"))
}

func TestS3Multipart(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	b := newS3Backend(t, srv.URL)
	ctx := context.Background()

	uploadID, err := b.StartMultipart(ctx, "d1/o1")
	require.NoError(t, err)
	assert.Equal(t, "upload-1", uploadID)

	require.NoError(t, b.CompleteMultipart(ctx, "d1/o1", uploadID, []sodb.UploadPart{
		{PartNumber: 1, ETag: `"e1"`},
		{PartNumber: 2, ETag: `"e2"`},
	}))
	require.NoError(t, b.AbortMultipart(ctx, "d1/o1", uploadID))

	require.Len(t, fake.requests, 3)
	assert.True(t, strings.HasPrefix(fake.requests[0], "POST /data/d1/o1?uploads"))
	assert.Contains(t, fake.requests[1], "uploadId=upload-1")
	assert.Contains(t, fake.bodies[1], "<PartNumber>2</PartNumber>")
	assert.True(t, strings.HasPrefix(fake.requests[2], "DELETE /data/d1/o1?uploadId=upload-1"))
}

func TestS3NeedsBucket(t *testing.T) {
	_, err := localstore.NewS3Backend(localstore.S3Config{}, 0, nullLogger())
	assert.Error(t, err)
}
