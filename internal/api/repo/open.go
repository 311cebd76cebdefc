package repo

import (
	"fmt"

	"jobdef"
	"jobdef/internal/api/store"
	"jobdef/internal/api/store/memory"
	"jobdef/pkg"
)

// OpenStore builds the job store selected by cfg.StoreDriver on top of the
// connections opened by jobdef.InitConfig. The server version is cached in
// Redis when a Redis client is configured.
func OpenStore(cfg jobdef.AppConfig) (store.Store, error) {
	var (
		st     store.Store
		server string
	)
	switch cfg.StoreDriver {
	case jobdef.StoreDriverMemory, "":
		jobdef.Logger.Warn().Msg("Using the in-memory job store, changes are lost on exit")
		return memory.New(), nil
	case jobdef.StoreDriverCatalog:
		catalog := NewCatalogStore(cfg.CatalogServerVersion)
		if cfg.Mode == "dev" {
			if err := catalog.Migrate(); err != nil {
				return nil, fmt.Errorf("migrate catalog: %w", err)
			}
			jobdef.Logger.Info().Msg("Catalog database migrated successfully")
		}
		st, server = catalog, cfg.MainDatabase.Host+"/"+cfg.MainDatabase.DatabaseName
	case jobdef.StoreDriverMSDB:
		if jobdef.MSSQL == nil {
			return nil, fmt.Errorf("msdb store needs a SQL Server connection")
		}
		st, server = NewMSDBStore(jobdef.MSSQL), cfg.TenantID
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if jobdef.Redis != nil {
		st = store.WithVersionCache(st, pkg.RedisCache{}, server, cfg.VersionCacheTTL, jobdef.Logger)
	}
	return st, nil
}
