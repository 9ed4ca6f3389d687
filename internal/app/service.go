package app

import (
	"context"
	"net/http"
	"time"

	"tasktree/api/internal/access"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/config"
	"tasktree/api/internal/model"
	"tasktree/api/internal/search"
)

// previewWidth and previewHeight bound generated image previews.
const (
	previewWidth  = 400
	previewHeight = 300
)

type Service struct {
	cfg    config.Config
	access *access.Resolver
	search *search.Service
	now    func() time.Time
}

func New(cfg config.Config, resolver *access.Resolver, searchService *search.Service) *Service {
	if searchService == nil {
		searchService = search.NewService(nil)
	}
	return &Service{
		cfg:    cfg,
		access: resolver,
		search: searchService,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve builds the per-request credential context.
func (s *Service) Resolve(r *http.Request) access.RequestContext {
	return s.access.Resolve(r)
}

// Ping reports the health of each dependency by name.
func (s *Service) Ping(ctx context.Context) map[string]error {
	return s.access.Ping(ctx)
}

// userClient returns the verified identity and a client bound to the
// request's credentials.
func (s *Service) userClient(rc access.RequestContext) (model.Identity, *backend.Client, error) {
	identity, err := rc.RequireIdentity()
	if err != nil {
		return model.Identity{}, nil, err
	}
	client, err := s.access.Client(rc.Credentials)
	if err != nil {
		return model.Identity{}, nil, err
	}
	return identity, client, nil
}

func (s *Service) databaseID() string {
	return s.cfg.Backend.DatabaseID
}

func (s *Service) collectionID() string {
	return s.cfg.Backend.CollectionID
}

func (s *Service) bucketID() string {
	return s.cfg.Backend.BucketID
}
