package app

import (
	"context"
	"fmt"
	"log"

	sessioncache "hydrodiag/internal/cache/session"
	"hydrodiag/internal/gateway/config"
	"hydrodiag/internal/gateway/repository/image"
	"hydrodiag/internal/gateway/repository/records"
)

type gatewayStores struct {
	records records.Store
	images  image.Store
	closers []func() error
}

func (s *gatewayStores) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func initStores(ctx context.Context, cfg *config.Config) (*gatewayStores, error) {
	stores := &gatewayStores{}

	origin, err := initRecordStore(ctx, cfg, stores)
	if err != nil {
		return nil, err
	}
	stores.records = sessioncache.NewCachedStore(origin, sessioncache.CacheConfig{
		TTL:        cfg.Cache.SessionTTL,
		MaxEntries: cfg.Cache.SessionSize,
	})

	images, err := chooseImageStore(cfg, newImageS3StoreFactory(cfg))
	if err != nil {
		return nil, err
	}
	stores.images = images
	return stores, nil
}

// initRecordStore opens the configured database. A missing or unreachable
// database leaves the service running with history and persistence disabled.
func initRecordStore(ctx context.Context, cfg *config.Config, stores *gatewayStores) (records.Store, error) {
	if !cfg.Database.Configured() {
		log.Printf("record store: DATABASE_URL not set, persistence disabled")
		return records.Unavailable{Reason: "DATABASE_URL not set"}, nil
	}
	sqlStore, err := records.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	stores.closers = append(stores.closers, sqlStore.Close)
	if err := sqlStore.EnsureSchema(ctx); err != nil {
		log.Printf("record store: warning: %v", err)
	} else {
		log.Printf("record store: %s ready", cfg.Database.Driver)
	}
	return sqlStore, nil
}

func newImageS3StoreFactory(cfg *config.Config) func() (image.Store, error) {
	return func() (image.Store, error) {
		s3Cfg := image.S3Config{
			Endpoint:      cfg.Image.Endpoint,
			Region:        cfg.Image.Region,
			AccessKey:     cfg.Image.AccessKey,
			SecretKey:     cfg.Image.SecretKey,
			Bucket:        cfg.Image.Bucket,
			UseSSL:        cfg.Image.UseSSL,
			PublicBaseURL: cfg.Image.PublicBaseURL,
		}
		s3Store, err := image.NewS3Store(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize image s3 store: %w", err)
		}
		log.Printf("image store: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		return s3Store, nil
	}
}

func chooseImageStore(cfg *config.Config, s3Factory func() (image.Store, error)) (image.Store, error) {
	if cfg.Image.CanUseS3() {
		return s3Factory()
	}
	if cfg.Image.Enabled {
		log.Printf("image store: using in-memory fallback (s3 config incomplete)")
	} else {
		log.Printf("image store: in-memory")
	}
	return image.NewMemoryStore(), nil
}
