package sodbmgr

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sciobjsdb/sodb/pkg/layout"
	"github.com/sciobjsdb/sodb/pkg/localstore"
	"github.com/sciobjsdb/sodb/pkg/remote"
	"github.com/sciobjsdb/sodb/pkg/transfer"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sodb.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0644))
	return path
}

func newTestManager(t *testing.T, body string) *SodbManager {
	t.Helper()
	logger, _ := test.NewNullLogger()
	mgr, err := NewManager(map[string]interface{}{
		"config-file": writeConfig(t, body),
		"logger":      logger,
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Destroy)
	return mgr
}

func TestDefaults(t *testing.T) {
	t.Setenv("SCIOBJSDB_API_TOKEN", "")
	mgr := newTestManager(t, "log:\n  level: debug\n")

	rc := mgr.RemoteConfig()
	assert.Equal(t, "localhost:9090", rc.Target())
	assert.True(t, rc.Insecure)
	assert.Empty(t, rc.Token)

	assert.Equal(t, transfer.EnumeratorConfig{
		PageSize:    transfer.DefaultPageSize,
		Parallelism: transfer.DefaultParallelism,
		Retry:       transfer.DefaultRetryPolicy,
	}, mgr.EnumeratorConfig())
	assert.Equal(t, transfer.DefaultQueueSize, mgr.QueueSize())
	assert.Equal(t, int64(transfer.DefaultChunkSize), mgr.UploadConfig().ChunkSize)

	dc, err := mgr.DownloadConfig("out", "")
	require.NoError(t, err)
	assert.Equal(t, layout.Canonical{}, dc.Strategy)
	assert.Equal(t, transfer.DefaultWorkers, dc.Workers)

	ls := mgr.LocalStoreConfig()
	assert.Equal(t, localstore.BackendFS, ls.Backend)
	assert.Equal(t, localstore.DefaultLinkTTL, ls.LinkTTL)

	// dialing is lazy, nothing needs to listen
	c1, err := mgr.Client(context.Background())
	require.NoError(t, err)
	c2, err := mgr.Client(context.Background())
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	mgr.Destroy()
}

func TestConfigFile(t *testing.T) {
	t.Setenv("SCIOBJSDB_API_TOKEN", "")
	mgr := newTestManager(t, `
endpoint:
  host: db.example.org
  port: 443
auth:
  apitoken: from-file
transfer:
  workers: 3
  retries: 0
  pathstyle: flat
localstore:
  backend: S3
  linkttl: 1m
  s3:
    bucket: data
`)

	rc := mgr.RemoteConfig()
	assert.Equal(t, "db.example.org:443", rc.Target())
	assert.False(t, rc.Insecure)
	assert.Equal(t, "from-file", rc.Token)
	assert.Equal(t, remote.APIToken, rc.TokenType)

	dc, err := mgr.DownloadConfig("out", "")
	require.NoError(t, err)
	assert.Equal(t, layout.Flat{}, dc.Strategy)
	assert.Equal(t, 3, dc.Workers)
	assert.Equal(t, 0, dc.Retry.Attempts)

	dc, err = mgr.DownloadConfig("out", "canonical")
	require.NoError(t, err)
	assert.Equal(t, layout.Canonical{}, dc.Strategy)

	_, err = mgr.DownloadConfig("out", "sideways")
	assert.Error(t, err)

	ls := mgr.LocalStoreConfig()
	assert.Equal(t, localstore.BackendS3, ls.Backend)
	assert.Equal(t, time.Minute, ls.LinkTTL)
	assert.Equal(t, "data", ls.S3.Bucket)
	assert.Equal(t, "us-east-1", ls.S3.Region)
}

func TestTokenPrecedence(t *testing.T) {
	t.Setenv("SCIOBJSDB_API_TOKEN", "from-env")
	mgr := newTestManager(t, "auth:\n  apitoken: from-file\n")
	assert.Equal(t, "from-env", mgr.RemoteConfig().Token)

	t.Setenv("SCIOBJSDB_API_TOKEN", "")
	mgr = newTestManager(t, "auth:\n  accesstoken: oidc\nendpoint:\n  insecure: true\n  host: db.example.org\n")
	rc := mgr.RemoteConfig()
	assert.Equal(t, "oidc", rc.Token)
	assert.Equal(t, remote.AccessToken, rc.TokenType)
	assert.True(t, rc.Insecure)
}

func TestTokenType(t *testing.T) {
	t.Setenv("SCIOBJSDB_API_TOKEN", "")
	mgr := newTestManager(t, "auth:\n  apitoken: opaque\n  tokentype: access_token\n")
	rc := mgr.RemoteConfig()
	assert.Equal(t, "opaque", rc.Token)
	assert.Equal(t, remote.AccessToken, rc.TokenType)

	logger, hook := test.NewNullLogger()
	mgr, err := NewManager(map[string]interface{}{
		"config-file": writeConfig(t, "auth:\n  apitoken: opaque\n  tokentype: bearer\n"),
		"logger":      logger,
	})
	require.NoError(t, err)
	defer mgr.Destroy()
	assert.Equal(t, remote.APIToken, mgr.RemoteConfig().TokenType)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "bearer", hook.LastEntry().Data["tokentype"])
}

func TestBadConfig(t *testing.T) {
	_, err := NewManager(map[string]interface{}{"config-file": writeConfig(t, "endpoint: [\n")})
	assert.Error(t, err)

	_, err = NewManager(map[string]interface{}{"config-file": filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = NewManager(map[string]interface{}{"config-file": 42})
	assert.Error(t, err)

	_, err = NewManager(map[string]interface{}{
		"config-file": writeConfig(t, ""),
		"logger":      "stdout",
	})
	assert.Error(t, err)

	_, err = NewManager(map[string]interface{}{"config-file": writeConfig(t, "log:\n  level: loud\n")})
	assert.Error(t, err)
}

func TestHomeConfig(t *testing.T) {
	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SCIOBJSDB_API_TOKEN", "")

	// nothing to find is fine
	mgr, err := NewManager(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "localhost", mgr.Cfg.GetString("endpoint.host"))

	dir := filepath.Join(home, ".sciobjsdb")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "config.yaml"), []byte("endpoint:\n  host: home.example.org\n"), 0644))

	mgr, err = NewManager(map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "home.example.org", mgr.Cfg.GetString("endpoint.host"))
}
