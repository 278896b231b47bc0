package sodbmgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/layout"
	"github.com/sciobjsdb/sodb/pkg/localstore"
	"github.com/sciobjsdb/sodb/pkg/remote"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"github.com/sciobjsdb/sodb/pkg/transfer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type SodbManager struct {
	Logger sodb.Logger
	Cfg    *viper.Viper

	m      sync.Mutex
	client *remote.Client
}

// NewManager reads the configuration and sets up logging. Recognized
// options are "config-file" (string) and "logger" (sodb.Logger).
func NewManager(userCfg map[string]interface{}) (*SodbManager, error) {
	var err error
	mgr := &SodbManager{}

	if cfgPathRaw, ok := userCfg["config-file"]; ok {
		if cfgPath, ok := cfgPathRaw.(string); ok {
			err = mgr.initConfig(&cfgPath)
		} else {
			return nil, errors.New("option 'config-file' must be of type string")
		}
	} else {
		err = mgr.initConfig(nil)
	}
	if err != nil {
		return nil, err
	}

	if loggerRaw, ok := userCfg["logger"]; ok {
		if logger, ok := loggerRaw.(sodb.Logger); ok {
			mgr.Logger = logger
		} else {
			return nil, errors.New("option 'logger' must satisfy sodb.Logger")
		}
	} else {
		logger := logrus.New()
		level, err := logrus.ParseLevel(mgr.Cfg.GetString("log.level"))
		if err != nil {
			return nil, errors.Wrap(err, "Invalid log.level")
		}
		logger.SetLevel(level)
		mgr.Logger = logger
	}

	return mgr, nil
}

// Destroy closes the remote connection, if one was opened.
func (self *SodbManager) Destroy() {
	self.m.Lock()
	defer self.m.Unlock()
	if self.client != nil {
		if err := self.client.Close(); err != nil {
			self.Logger.WithError(err).Warn("Failed to close remote connection")
		}
		self.client = nil
	}
}

func (self *SodbManager) initConfig(cfgPath *string) error {
	// This is a private viper context just for sodb (so as not to conflict
	// with the importer's usage).
	self.Cfg = viper.New()

	self.Cfg.SetDefault("endpoint.host", "localhost")
	self.Cfg.SetDefault("endpoint.port", 9090)

	// Order of precedence: ENV, config file
	self.Cfg.BindEnv("auth.apitoken", "SCIOBJSDB_API_TOKEN")
	self.Cfg.BindEnv("auth.accesstoken", "SCIOBJSDB_ACCESS_TOKEN")

	self.Cfg.SetDefault("transfer.workers", transfer.DefaultWorkers)
	self.Cfg.SetDefault("transfer.queuesize", transfer.DefaultQueueSize)
	self.Cfg.SetDefault("transfer.pagesize", transfer.DefaultPageSize)
	self.Cfg.SetDefault("transfer.parallelism", transfer.DefaultParallelism)
	self.Cfg.SetDefault("transfer.chunksize", transfer.DefaultChunkSize)
	self.Cfg.SetDefault("transfer.retries", transfer.DefaultRetries)
	self.Cfg.SetDefault("transfer.retrydelay", transfer.DefaultRetryDelay)
	self.Cfg.SetDefault("transfer.pathstyle", "canonical")

	self.Cfg.SetDefault("localstore.address", "localhost:9090")
	self.Cfg.SetDefault("localstore.httpaddress", "localhost:9091")
	self.Cfg.SetDefault("localstore.dir", "./build/localstore")
	self.Cfg.SetDefault("localstore.backend", localstore.BackendFS)
	self.Cfg.SetDefault("localstore.linkttl", localstore.DefaultLinkTTL)
	self.Cfg.SetDefault("localstore.s3.region", "us-east-1")

	self.Cfg.SetDefault("log.level", "info")

	if cfgPath != nil {
		// Use config file from the flag.
		self.Cfg.SetConfigFile(*cfgPath)
	} else {
		path, err := findConfig()
		if err != nil {
			return err
		}
		if path == "" {
			// everything has a default
			return nil
		}
		self.Cfg.SetConfigFile(path)
	}

	if err := self.Cfg.ReadInConfig(); err != nil {
		return errors.Wrap(err, "Failed to load config")
	}
	return nil
}

// findConfig returns the first existing file of the default search path:
// ~/.sciobjsdb/config.yaml, ~/.config/sciobjsdb/config.yaml and
// ./configs/sodb.yaml.
func findConfig() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "Failed to find home directory")
	}
	candidates := []string{
		filepath.Join(home, ".sciobjsdb", "config.yaml"),
		filepath.Join(home, ".config", "sciobjsdb", "config.yaml"),
		filepath.Join("configs", "sodb.yaml"),
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", nil
}

func (self *SodbManager) RemoteConfig() remote.Config {
	host := self.Cfg.GetString("endpoint.host")
	config := remote.Config{
		Host:     host,
		Port:     self.Cfg.GetInt("endpoint.port"),
		Insecure: host == "localhost" || host == "127.0.0.1",
	}
	if self.Cfg.IsSet("endpoint.insecure") {
		config.Insecure = self.Cfg.GetBool("endpoint.insecure")
	}

	if token := self.Cfg.GetString("auth.apitoken"); token != "" {
		config.Token, config.TokenType = token, remote.APIToken
	} else if token := self.Cfg.GetString("auth.accesstoken"); token != "" {
		config.Token, config.TokenType = token, remote.AccessToken
	}
	if self.Cfg.IsSet("auth.tokentype") {
		raw := self.Cfg.GetString("auth.tokentype")
		if tt, ok := remote.ParseTokenType(raw); ok {
			config.TokenType = tt
		} else {
			self.Logger.WithField("tokentype", raw).Warnf("Unknown auth.tokentype, sending as %s", config.TokenType.Key())
		}
	}
	return config
}

// Client returns the shared remote client, dialing on first use.
func (self *SodbManager) Client(ctx context.Context) (*remote.Client, error) {
	self.m.Lock()
	defer self.m.Unlock()
	if self.client != nil {
		return self.client, nil
	}

	config := self.RemoteConfig()
	if config.Token == "" {
		self.Logger.Warn("No api token configured, calls are sent unauthenticated")
	}
	client, err := remote.Dial(ctx, config, self.Logger)
	if err != nil {
		return nil, err
	}
	self.client = client
	return client, nil
}

func (self *SodbManager) RetryPolicy() transfer.RetryPolicy {
	return transfer.RetryPolicy{
		Attempts: self.Cfg.GetInt("transfer.retries"),
		Delay:    self.Cfg.GetDuration("transfer.retrydelay"),
	}
}

func (self *SodbManager) QueueSize() int {
	return self.Cfg.GetInt("transfer.queuesize")
}

func (self *SodbManager) EnumeratorConfig() transfer.EnumeratorConfig {
	return transfer.EnumeratorConfig{
		PageSize:    self.Cfg.GetInt("transfer.pagesize"),
		Parallelism: self.Cfg.GetInt("transfer.parallelism"),
		Retry:       self.RetryPolicy(),
	}
}

// DownloadConfig resolves the path style; an empty style uses the
// configured one.
func (self *SodbManager) DownloadConfig(basePath, style string) (transfer.DownloadConfig, error) {
	if style == "" {
		style = self.Cfg.GetString("transfer.pathstyle")
	}
	strategy, err := layout.FromName(style)
	if err != nil {
		return transfer.DownloadConfig{}, err
	}
	return transfer.DownloadConfig{
		BasePath: basePath,
		Strategy: strategy,
		Workers:  self.Cfg.GetInt("transfer.workers"),
		Retry:    self.RetryPolicy(),
	}, nil
}

func (self *SodbManager) UploadConfig() transfer.UploadConfig {
	return transfer.UploadConfig{
		ChunkSize: self.Cfg.GetInt64("transfer.chunksize"),
		Retry:     self.RetryPolicy(),
	}
}

func (self *SodbManager) LocalStoreConfig() localstore.Config {
	sub := "localstore."
	return localstore.Config{
		Address:     self.Cfg.GetString(sub + "address"),
		HTTPAddress: self.Cfg.GetString(sub + "httpaddress"),
		PublicURL:   self.Cfg.GetString(sub + "publicurl"),
		Dir:         self.Cfg.GetString(sub + "dir"),
		Backend:     strings.ToLower(self.Cfg.GetString(sub + "backend")),
		Token:       self.Cfg.GetString(sub + "apitoken"),
		LinkTTL:     self.Cfg.GetDuration(sub + "linkttl"),
		Secret:      []byte(self.Cfg.GetString(sub + "secret")),
		S3: localstore.S3Config{
			Bucket:    self.Cfg.GetString(sub + "s3.bucket"),
			Region:    self.Cfg.GetString(sub + "s3.region"),
			Endpoint:  self.Cfg.GetString(sub + "s3.endpoint"),
			AccessKey: self.Cfg.GetString(sub + "s3.accesskey"),
			SecretKey: self.Cfg.GetString(sub + "s3.secretkey"),
		},
	}
}
