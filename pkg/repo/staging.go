package repo

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

// createObjectTempDir allocates a fresh, empty staging directory below the
// work dir. Staging directories are siblings of each other and never live
// inside object roots. The caller guarantees deletion on every exit path
// via safeDeleteDirectory.
func createObjectTempDir(workDir, objectID string) (string, error) {
	idHash := fmt.Sprintf("%x", sha256.Sum256([]byte(objectID)))[:16]
	dir := filepath.Join(workDir, fmt.Sprintf("ocflkit-%s-%s", idHash, uuid.NewString()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", ocflerrors.StorageIO(err, "cannot create staging directory '%s'", dir)
	}
	return dir, nil
}

// safeDeleteDirectory removes a staging directory, logging instead of
// failing so that cleanup never masks the primary error.
func safeDeleteDirectory(dir string, logger zLogger.ZLogger) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Msgf("cannot delete staging directory '%s'", dir)
	}
}
