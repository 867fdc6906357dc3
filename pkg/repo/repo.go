package repo

import (
	"io"
	"strings"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/ocfl-archive/ocflkit/data/specs"
	"github.com/ocfl-archive/ocflkit/pkg/cache"
	"github.com/ocfl-archive/ocflkit/pkg/checksum"
	"github.com/ocfl-archive/ocflkit/pkg/inventory"
	"github.com/ocfl-archive/ocflkit/pkg/layout"
	"github.com/ocfl-archive/ocflkit/pkg/lock"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
	"github.com/ocfl-archive/ocflkit/pkg/pathmap"
	"github.com/ocfl-archive/ocflkit/pkg/storage"
)

const RootNamasteFile = "0=ocfl_1.1"
const RootNamasteContent = "ocfl_1.1\n"
const ObjectNamasteFile = "0=ocfl_object_1.1"
const ObjectNamasteContent = "ocfl_object_1.1\n"
const RootLayoutFile = "ocfl_layout.json"

// Repository composes the engine components into the create / update /
// read / purge contract. It is safe for concurrent use; writers to the
// same object are serialized by the object lock.
type Repository struct {
	store           storage.Storage
	layout          layout.StorageLayout
	objectLock      lock.ObjectLock
	mapper          inventory.InventoryMapper
	pathMapper      pathmap.LogicalPathMapper
	constraints     pathmap.ContentPathConstraintProcessor
	invCache        cache.Cache[*inventory.Inventory]
	workDir         string
	digestAlg       checksum.DigestAlgorithm
	contentDir      string
	verifyStaging   bool
	lockTimeout     time.Duration
	fileLockTimeout time.Duration
	now             func() time.Time
	logger          zLogger.ZLogger
	closed          atomic.Bool
}

type Option func(*Repository)

// WithDigestAlgorithm sets the primary digest algorithm used for new
// objects. sha512 is the default; sha256 is the permitted alternative.
func WithDigestAlgorithm(alg checksum.DigestAlgorithm) Option {
	return func(r *Repository) { r.digestAlg = alg }
}

func WithContentDirectory(contentDir string) Option {
	return func(r *Repository) { r.contentDir = contentDir }
}

// WithVerifyStaging recomputes the digest of every staged content file
// before a version is installed.
func WithVerifyStaging(verify bool) Option {
	return func(r *Repository) { r.verifyStaging = verify }
}

func WithObjectLock(objectLock lock.ObjectLock) Option {
	return func(r *Repository) { r.objectLock = objectLock }
}

func WithLockTimeout(timeout time.Duration) Option {
	return func(r *Repository) { r.lockTimeout = timeout }
}

func WithFileLockTimeout(timeout time.Duration) Option {
	return func(r *Repository) { r.fileLockTimeout = timeout }
}

func WithInventoryMapper(mapper inventory.InventoryMapper) Option {
	return func(r *Repository) { r.mapper = mapper }
}

func WithLogicalPathMapper(pathMapper pathmap.LogicalPathMapper) Option {
	return func(r *Repository) { r.pathMapper = pathMapper }
}

func WithContentPathConstraints(constraints pathmap.ContentPathConstraintProcessor) Option {
	return func(r *Repository) { r.constraints = constraints }
}

func WithInventoryCache(invCache cache.Cache[*inventory.Inventory]) Option {
	return func(r *Repository) { r.invCache = invCache }
}

// WithClock injects the time source used for version timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository opens a repository on the given storage. The repository
// root is initialized with namaste, layout declaration and spec copies if
// it is empty.
func NewRepository(store storage.Storage, lay layout.StorageLayout, workDir string, logger zLogger.ZLogger, opts ...Option) (*Repository, error) {
	r := &Repository{
		store:           store,
		layout:          lay,
		workDir:         workDir,
		digestAlg:       checksum.DigestSHA512,
		contentDir:      inventory.DefaultContentDirectory,
		verifyStaging:   true,
		lockTimeout:     10 * time.Second,
		fileLockTimeout: 10 * time.Second,
		mapper:          inventory.NewJSONMapper(),
		pathMapper:      pathmap.NewDirectLogicalPathMapper(),
		constraints:     pathmap.DefaultConstraints(),
		invCache:        cache.NewNoOpCache[*inventory.Inventory](),
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.objectLock == nil {
		r.objectLock = lock.NewInMemoryObjectLock(r.lockTimeout)
	}
	if r.digestAlg != checksum.DigestSHA512 && r.digestAlg != checksum.DigestSHA256 {
		return nil, errors.Errorf("digest algorithm '%s' is not permitted as primary algorithm", r.digestAlg)
	}
	if err := r.initRoot(); err != nil {
		return nil, errors.WithStack(err)
	}
	return r, nil
}

// initRoot writes namaste, spec copies and the layout declaration into an
// empty storage root, or verifies an existing root.
func (r *Repository) initRoot() error {
	exists, err := r.store.FileExists(RootNamasteFile)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		layoutStr, err := r.store.ReadToString(RootLayoutFile)
		if err != nil {
			if ocflerrors.Is(err, ocflerrors.ErrNotFound) {
				return nil
			}
			return errors.WithStack(err)
		}
		rl, err := layout.UnmarshalRootLayout([]byte(layoutStr))
		if err != nil {
			return errors.WithStack(err)
		}
		if rl.Extension != r.layout.Name() {
			return errors.Errorf("repository is laid out with '%s', not '%s'", rl.Extension, r.layout.Name())
		}
		return nil
	}
	r.logger.Info().Msgf("initializing repository root with layout '%s'", r.layout.Name())
	if err := r.store.Write(RootNamasteFile, []byte(RootNamasteContent), "text/plain"); err != nil {
		return errors.Wrap(err, "cannot write root namaste")
	}
	layoutData, err := layout.MarshalRootLayout(r.layout)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := r.store.Write(RootLayoutFile, layoutData, "application/json"); err != nil {
		return errors.Wrap(err, "cannot write root layout")
	}
	if err := r.store.Write("ocfl_1.1.md", specs.OCFL1_1, "text/markdown"); err != nil {
		return errors.Wrap(err, "cannot write spec copy")
	}
	if err := r.store.Write("ocfl_extensions_1.0.md", specs.OCFLExtensions1_0, "text/markdown"); err != nil {
		return errors.Wrap(err, "cannot write extensions spec copy")
	}
	return nil
}

// Close shuts the repository down. Closing is idempotent; operations on a
// closed repository fail.
func (r *Repository) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *Repository) ensureOpen() error {
	if r.closed.Load() {
		return errors.New("repository is closed")
	}
	return nil
}

// objectRootPath maps an object id to its root path via the storage
// layout extension.
func (r *Repository) objectRootPath(id string) (string, error) {
	if id == "" {
		return "", errors.New("empty object id")
	}
	rootPath, err := r.layout.MapObjectID(id)
	if err != nil {
		return "", errors.Wrapf(err, "cannot map object id '%s'", id)
	}
	return rootPath, nil
}

// ObjectExists reports whether an object root with a namaste file exists
// for the id.
func (r *Repository) ObjectExists(id string) (bool, error) {
	if err := r.ensureOpen(); err != nil {
		return false, err
	}
	rootPath, err := r.objectRootPath(id)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return r.store.FileExists(rootPath + "/" + ObjectNamasteFile)
}

// loadInventory reads and verifies the working inventory of an object:
// the mutable HEAD inventory when the overlay exists, the root inventory
// otherwise. Returns nil without error when the object does not exist.
func (r *Repository) loadInventory(id string) (*inventory.Inventory, error) {
	if inv, ok := r.invCache.Get(id); ok {
		return inv, nil
	}
	rootPath, err := r.objectRootPath(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	exists, err := r.store.FileExists(rootPath + "/inventory.json")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !exists {
		return nil, nil
	}
	invPath := rootPath + "/inventory.json"
	mutablePath := rootPath + "/" + inventory.MutableHeadDir + "/inventory.json"
	hasMutable, err := r.store.FileExists(mutablePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if hasMutable {
		invPath = mutablePath
	}
	inv, err := r.readInventory(invPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if hasMutable {
		revision, err := r.maxRevisionMarker(rootPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if revision > inv.RevisionNum() {
			inv.SetRevisionNum(revision)
		}
	}
	if inv.Id != id {
		return nil, ocflerrors.CorruptObject("inventory at '%s' describes '%s', not '%s'", invPath, inv.Id, id)
	}
	r.invCache.Put(id, inv)
	return inv, nil
}

// maxRevisionMarker returns the highest claimed revision number of the
// mutable HEAD overlay, 0 when no markers exist.
func (r *Repository) maxRevisionMarker(rootPath string) (int, error) {
	listings, err := r.store.ListDirectory(rootPath + "/" + inventory.MutableHeadRevisionsDir)
	if err != nil {
		if ocflerrors.Is(err, ocflerrors.ErrNotFound) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}
	maxRev := 0
	for _, listing := range listings {
		if listing.Type != storage.ListingFile || !strings.HasPrefix(listing.Relative, "r") {
			continue
		}
		var rev int
		for _, c := range listing.Relative[1:] {
			if c < '0' || c > '9' {
				rev = 0
				break
			}
			rev = rev*10 + int(c-'0')
		}
		if rev > maxRev {
			maxRev = rev
		}
	}
	return maxRev, nil
}

// readInventory reads one inventory file and verifies it against its
// digest sidecar.
func (r *Repository) readInventory(invPath string) (*inventory.Inventory, error) {
	data, err := r.store.ReadToString(invPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	inv, err := r.mapper.Read(strings.NewReader(data))
	if err != nil {
		return nil, ocflerrors.CorruptObject("cannot parse inventory at '%s': %v", invPath, err)
	}
	sidecarPath := invPath + "." + string(inv.DigestAlgorithm)
	sidecarContent, err := r.store.ReadToString(sidecarPath)
	if err != nil {
		return nil, ocflerrors.CorruptObject("cannot read inventory sidecar at '%s': %v", sidecarPath, err)
	}
	expected, err := inventory.ParseSidecar(sidecarContent)
	if err != nil {
		return nil, ocflerrors.CorruptObject("invalid inventory sidecar at '%s': %v", sidecarPath, err)
	}
	actual, err := checksum.Checksum(strings.NewReader(data), inv.DigestAlgorithm)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !checksum.Equal(actual, expected) {
		return nil, ocflerrors.CorruptObject("inventory digest %s at '%s' does not match sidecar %s", actual, invPath, expected)
	}
	if err := inv.Validate(); err != nil {
		return nil, ocflerrors.CorruptObject("inventory at '%s' is invalid: %v", invPath, err)
	}
	return inv, nil
}

// requireInventory loads the working inventory or fails with NotFound.
func (r *Repository) requireInventory(id string) (*inventory.Inventory, error) {
	inv, err := r.loadInventory(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if inv == nil {
		return nil, ocflerrors.NotFound("object '%s'", id)
	}
	return inv, nil
}

// GetInventory returns the working inventory of an object.
func (r *Repository) GetInventory(id string) (*inventory.Inventory, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	return r.requireInventory(id)
}

// ReadObject opens a logical path of the head version. The returned
// stream verifies the content's primary digest at end-of-stream.
func (r *Repository) ReadObject(id, logicalPath string) (io.ReadCloser, error) {
	inv, err := r.GetInventory(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return r.readVersionFile(inv, inv.Head, logicalPath)
}

// ReadObjectVersion opens a logical path of a specific version.
func (r *Repository) ReadObjectVersion(id, version, logicalPath string) (io.ReadCloser, error) {
	inv, err := r.GetInventory(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return r.readVersionFile(inv, version, logicalPath)
}

func (r *Repository) readVersionFile(inv *inventory.Inventory, version, logicalPath string) (io.ReadCloser, error) {
	v, err := inv.GetVersion(version)
	if err != nil {
		return nil, ocflerrors.NotFound("version '%s' of object '%s'", version, inv.Id)
	}
	digest := v.DigestOf(logicalPath)
	if digest == "" {
		return nil, ocflerrors.NotFound("logical path '%s' in %s of object '%s'", logicalPath, version, inv.Id)
	}
	contentPath := inv.ContentPath(digest)
	if contentPath == "" {
		return nil, ocflerrors.CorruptObject("digest '%s' of object '%s' has no content path", digest, inv.Id)
	}
	rootPath, err := r.objectRootPath(inv.Id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fp, err := r.store.Read(rootPath + "/" + contentPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fr, err := checksum.NewFixityCheckReader(fp, inv.DigestAlgorithm, digest)
	if err != nil {
		fp.Close()
		return nil, errors.WithStack(err)
	}
	return &fixityReadCloser{FixityReader: fr, closer: fp}, nil
}

type fixityReadCloser struct {
	*checksum.FixityReader
	closer io.Closer
}

func (f *fixityReadCloser) Close() error {
	return f.closer.Close()
}

// FileEntry describes one file of a version.
type FileEntry struct {
	LogicalPath string
	Digest      string
	ContentPath string
}

// ListFiles lists the files of a version ("" for head), sorted by logical
// path.
func (r *Repository) ListFiles(id, version string) ([]FileEntry, error) {
	inv, err := r.GetInventory(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if version == "" {
		version = inv.Head
	}
	v, err := inv.GetVersion(version)
	if err != nil {
		return nil, ocflerrors.NotFound("version '%s' of object '%s'", version, id)
	}
	var result []FileEntry
	for _, logicalPath := range v.LogicalPaths() {
		digest := v.DigestOf(logicalPath)
		result = append(result, FileEntry{
			LogicalPath: logicalPath,
			Digest:      digest,
			ContentPath: inv.ContentPath(digest),
		})
	}
	return result, nil
}

// PurgeObject erases the object root unconditionally. Purging a missing
// object is not an error.
func (r *Repository) PurgeObject(id string) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	rootPath, err := r.objectRootPath(id)
	if err != nil {
		return errors.WithStack(err)
	}
	return r.objectLock.DoInWriteLock(id, func() error {
		r.logger.Info().Msgf("purging object '%s'", id)
		r.invCache.Invalidate(id)
		if err := r.store.DeleteDirectory(rootPath); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(r.store.DeleteEmptyDirsUp(rootPath))
	})
}

// ForEachObject calls fn with the id of every object in the repository.
// The listing is finite and single-pass; mutating the repository during
// iteration is undefined.
func (r *Repository) ForEachObject(fn func(id string) error) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	it, err := r.store.IterateObjects("")
	if err != nil {
		return errors.WithStack(err)
	}
	defer it.Close()
	for {
		rootPath, ok, err := it.Next()
		if err != nil {
			return errors.WithStack(err)
		}
		if !ok {
			return nil
		}
		inv, err := r.readInventory(rootPath + "/inventory.json")
		if err != nil {
			return errors.WithStack(err)
		}
		if err := fn(inv.Id); err != nil {
			return err
		}
	}
}

// ValidateObject loads the object's inventory (from the inventory cache
// when it holds the object) and, when checkContent
// is set, recomputes the primary digest of every manifest entry.
func (r *Repository) ValidateObject(id string, checkContent bool) error {
	inv, err := r.GetInventory(id)
	if err != nil {
		return errors.WithStack(err)
	}
	if !checkContent {
		return nil
	}
	rootPath, err := r.objectRootPath(id)
	if err != nil {
		return errors.WithStack(err)
	}
	var unreadable, mismatched []string
	for digest, paths := range inv.Manifest {
		for _, contentPath := range paths {
			fp, err := r.store.Read(rootPath + "/" + contentPath)
			if err != nil {
				r.logger.Warn().Err(err).Msgf("cannot read content path '%s'", contentPath)
				unreadable = append(unreadable, contentPath)
				continue
			}
			actual, err := checksum.Checksum(fp, inv.DigestAlgorithm)
			fp.Close()
			if err != nil {
				return errors.WithStack(err)
			}
			if !checksum.Equal(actual, digest) {
				r.logger.Warn().Msgf("content path '%s' has digest %s, manifest says %s", contentPath, actual, digest)
				mismatched = append(mismatched, contentPath)
			}
		}
	}
	if len(unreadable) > 0 {
		return ocflerrors.CorruptObject("object '%s' has %d unreadable content paths: %s", id, len(unreadable), strings.Join(unreadable, ", "))
	}
	if len(mismatched) > 0 {
		return ocflerrors.FixityMismatch("object '%s' has %d content paths failing fixity: %s", id, len(mismatched), strings.Join(mismatched, ", "))
	}
	return nil
}
