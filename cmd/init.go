package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/techpack-cli/internal/artifact"
	"github.com/sells-group/techpack-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "techpack.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initArtifacts(ctx context.Context) (*artifact.Cache, error) {
	switch cfg.Artifacts.Driver {
	case "local", "":
		s, err := artifact.NewLocal(cfg.Artifacts.Dir)
		if err != nil {
			return nil, err
		}
		return artifact.NewCache(s, cfg.Artifacts.FreshnessDays), nil
	case "minio":
		s, err := artifact.NewMinio(cfg.Artifacts.Minio, cfg.Artifacts.LinkExpireDays)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return artifact.NewCache(s, cfg.Artifacts.FreshnessDays), nil
	default:
		return nil, eris.Errorf("unsupported artifacts driver: %s", cfg.Artifacts.Driver)
	}
}
