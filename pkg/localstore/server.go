// Package localstore is a development implementation of the object storage
// resource services. Catalog state is kept in memory; object bytes go to a
// directory served over signed HTTP links, or to an S3 bucket through
// presigned links.
package localstore

import (
	"context"
	"crypto/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sciobjsdb/sodb/pkg/remote"
	"github.com/sciobjsdb/sodb/pkg/sodb"
	"google.golang.org/grpc"
)

const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

type Config struct {
	// Address is the gRPC listen address.
	Address string
	// HTTPAddress is the listen address of the signed link server of the fs
	// backend.
	HTTPAddress string
	// PublicURL is the base of issued links, derived from the HTTP listener
	// when empty.
	PublicURL string
	Dir       string
	Backend   string
	S3        S3Config
	// Token, when set, is required on every call.
	Token   string
	LinkTTL time.Duration
	// Secret signs fs links, random per start when empty.
	Secret []byte
}

type Server struct {
	config     Config
	log        sodb.Logger
	Store      *Store
	grpcServer *grpc.Server
	httpServer *http.Server

	Addr, HTTPAddr net.Addr
	done           chan error
}

func NewServer(config Config, log sodb.Logger) *Server {
	if config.Backend == "" {
		config.Backend = BackendFS
	}
	return &Server{
		config: config,
		log:    log.WithField("module", "localstore"),
		done:   make(chan error, 2),
	}
}

// Start opens the listeners and serves in the background.
func (s *Server) Start() error {
	backend, err := s.startBackend()
	if err != nil {
		return err
	}
	s.Store = NewStore(backend, s.log)

	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.stopHTTP()
		return errors.Wrap(err, "error opening grpc listener")
	}
	s.Addr = lis.Addr()

	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(remote.RequireToken(s.config.Token)))
	remote.RegisterResourceServer(s.grpcServer, s.Store)
	go func() {
		s.done <- s.grpcServer.Serve(lis)
	}()

	s.log.Infof("Serving resource services at %s (%s backend)", s.Addr, s.config.Backend)
	return nil
}

func (s *Server) startBackend() (Backend, error) {
	switch strings.ToLower(s.config.Backend) {
	case BackendS3:
		return NewS3Backend(s.config.S3, s.config.LinkTTL, s.log)
	case BackendFS:
	default:
		return nil, errors.Errorf("unknown backend %q (want fs or s3)", s.config.Backend)
	}

	secret := s.config.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Wrap(err, "Failed to generate link secret")
		}
	}

	lis, err := net.Listen("tcp", s.config.HTTPAddress)
	if err != nil {
		return nil, errors.Wrap(err, "error opening http listener")
	}
	s.HTTPAddr = lis.Addr()

	publicURL := s.config.PublicURL
	if publicURL == "" {
		publicURL = "http://" + s.HTTPAddr.String()
	}
	backend, err := NewFSBackend(s.config.Dir, strings.TrimSuffix(publicURL, "/"), secret, s.config.LinkTTL, s.log)
	if err != nil {
		lis.Close()
		return nil, err
	}

	s.httpServer = &http.Server{Handler: backend.Router()}
	go func() {
		if err := s.httpServer.Serve(lis); err != http.ErrServerClosed {
			s.done <- err
		}
	}()
	s.log.Infof("Serving object links at %s from %s", publicURL, s.config.Dir)
	return backend, nil
}

func (s *Server) stopHTTP() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// Wait blocks until one of the servers stops.
func (s *Server) Wait() error {
	return <-s.done
}

func (s *Server) Shutdown() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	s.stopHTTP()
}
