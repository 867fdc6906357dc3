package cmd

import (
	"os"
	"time"

	"emperror.dev/errors"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/ocfl-archive/ocflkit/pkg/cache"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
	"github.com/ocfl-archive/ocflkit/pkg/inventory"
	"github.com/ocfl-archive/ocflkit/pkg/layout"
	"github.com/ocfl-archive/ocflkit/pkg/lock"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
	"github.com/ocfl-archive/ocflkit/pkg/repo"
	"github.com/ocfl-archive/ocflkit/pkg/storage"
	"github.com/ocfl-archive/ocflkit/pkg/storage/fsstore"
	"github.com/ocfl-archive/ocflkit/pkg/storage/s3store"
)

// openStorage selects the storage backend: S3 when configured, the local
// filesystem otherwise.
func openStorage(storageRoot string, logger zLogger.ZLogger) (storage.Storage, error) {
	if conf.S3 != nil && conf.S3.Endpoint != "" {
		return s3store.NewFS(conf.S3.Endpoint, conf.S3.AccessKey, conf.S3.SecretKey, conf.S3.Bucket, conf.S3.Region, conf.S3.UseSSL, logger)
	}
	if err := os.MkdirAll(storageRoot, 0755); err != nil {
		return nil, errors.Wrapf(err, "cannot create storage root '%s'", storageRoot)
	}
	return fsstore.NewFS(storageRoot, logger)
}

// repositoryLayout reads the layout declaration of an existing repository
// root, falling back to the configured layout for a fresh one.
func repositoryLayout(store storage.Storage) (layout.StorageLayout, error) {
	layoutStr, err := store.ReadToString(repo.RootLayoutFile)
	if err == nil {
		rl, err := layout.UnmarshalRootLayout([]byte(layoutStr))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return layout.NewFromRootLayout(rl)
	}
	if !ocflerrors.Is(err, ocflerrors.ErrNotFound) {
		return nil, errors.WithStack(err)
	}
	switch conf.Init.Layout {
	case layout.LayoutFlatDirectName:
		return layout.NewFlatDirect(&layout.FlatDirectConfig{ExtensionName: layout.LayoutFlatDirectName})
	case layout.LayoutHashedNTupleName:
		cfg := layout.DefaultHashedNTupleConfig()
		if conf.Init.TupleSize > 0 {
			cfg.TupleSize = conf.Init.TupleSize
		}
		if conf.Init.NumberOfTuples > 0 {
			cfg.NumberOfTuples = conf.Init.NumberOfTuples
		}
		return layout.NewHashedNTuple(cfg)
	default:
		return nil, errors.Errorf("unknown layout '%s'", conf.Init.Layout)
	}
}

func openRepository(storageRoot string, logger zLogger.ZLogger) (*repo.Repository, error) {
	store, err := openStorage(storageRoot, logger)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	lay, err := repositoryLayout(store)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	workDir := conf.WorkDir
	if workDir == "" {
		if workDir, err = os.MkdirTemp("", "ocflkit-work-"); err != nil {
			return nil, errors.Wrap(err, "cannot create work dir")
		}
	}
	timeout := time.Duration(conf.Lock.TimeoutSeconds) * time.Second
	opts := []repo.Option{
		repo.WithDigestAlgorithm(checksum.DigestAlgorithm(conf.Init.DigestAlgorithm)),
		repo.WithVerifyStaging(conf.VerifyStaging),
		repo.WithLockTimeout(timeout),
		repo.WithFileLockTimeout(timeout),
	}
	if conf.Lock.Database != "" {
		objectLock, err := lock.NewSQLiteObjectLock(conf.Lock.Database, timeout)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		opts = append(opts, repo.WithObjectLock(objectLock))
	}
	if conf.CacheSize > 0 {
		invCache, err := cache.NewLRUCache[*inventory.Inventory](conf.CacheSize)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		opts = append(opts, repo.WithInventoryCache(invCache))
	}
	return repo.NewRepository(store, lay, workDir, logger, opts...)
}

func versionInfo(message string) inventory.VersionInfo {
	info := inventory.VersionInfo{Message: message}
	if message == "" && conf.Put != nil {
		info.Message = conf.Put.Message
	}
	if conf.Put != nil && conf.Put.User != nil {
		info.User = &inventory.User{Name: conf.Put.User.Name, Address: conf.Put.User.Address}
	}
	return info
}
