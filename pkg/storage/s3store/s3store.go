package s3store

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
	"github.com/ocfl-archive/ocflkit/pkg/storage"
)

// FS is the object-store storage backend on top of an S3 compatible
// endpoint. Directories are emulated through key prefixes; empty
// directories do not exist, so the empty-dir operations are no-ops. Media
// types are forwarded as content types.
type FS struct {
	client   *minio.Client
	ctx      context.Context
	bucket   string
	endpoint string
	logger   zLogger.ZLogger
}

func NewFS(endpoint, accessKeyID, secretAccessKey, bucket, region string, useSSL bool, logger zLogger.ZLogger) (*FS, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create s3 client instance")
	}
	return &FS{
		client:   client,
		ctx:      context.Background(),
		bucket:   bucket,
		endpoint: endpoint,
		logger:   logger,
	}, nil
}

func (s3fs *FS) String() string {
	return s3fs.endpoint + "/" + s3fs.bucket
}

func key(path string) string {
	k := strings.Trim(filepath.ToSlash(filepath.Clean(path)), "/")
	if k == "." {
		return ""
	}
	return k
}

func isNotExist(err error) bool {
	errResp := minio.ToErrorResponse(errors.Cause(err))
	return errResp.StatusCode == http.StatusNotFound
}

func (s3fs *FS) ListDirectory(path string) ([]storage.Listing, error) {
	prefix := key(path)
	if prefix != "" {
		prefix += "/"
	}
	var result []storage.Listing
	for objectInfo := range s3fs.client.ListObjects(s3fs.ctx, s3fs.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if objectInfo.Err != nil {
			return nil, ocflerrors.StorageIO(objectInfo.Err, "cannot list '%s'", prefix)
		}
		rel := strings.TrimPrefix(objectInfo.Key, prefix)
		if strings.HasSuffix(rel, "/") {
			result = append(result, storage.DirectoryListing(strings.TrimSuffix(rel, "/")))
		} else {
			result = append(result, storage.FileListing(rel))
		}
	}
	if len(result) == 0 {
		return nil, ocflerrors.NotFound("directory %s", path)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Relative < result[j].Relative })
	return result, nil
}

func (s3fs *FS) ListRecursive(path string) ([]storage.Listing, error) {
	prefix := key(path)
	if prefix != "" {
		prefix += "/"
	}
	var result []storage.Listing
	for objectInfo := range s3fs.client.ListObjects(s3fs.ctx, s3fs.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if objectInfo.Err != nil {
			return nil, ocflerrors.StorageIO(objectInfo.Err, "cannot list '%s'", prefix)
		}
		result = append(result, storage.FileListing(strings.TrimPrefix(objectInfo.Key, prefix)))
	}
	return result, nil
}

func (s3fs *FS) IterateObjects(path string) (storage.ObjectRootIterator, error) {
	prefix := key(path)
	if prefix != "" {
		prefix += "/"
	}
	objectCh := s3fs.client.ListObjects(s3fs.ctx, s3fs.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	return &objectRootIterator{objectCh: objectCh, seen: map[string]bool{}}, nil
}

type objectRootIterator struct {
	objectCh <-chan minio.ObjectInfo
	seen     map[string]bool
}

func (it *objectRootIterator) Next() (string, bool, error) {
	for objectInfo := range it.objectCh {
		if objectInfo.Err != nil {
			return "", false, ocflerrors.StorageIO(objectInfo.Err, "cannot iterate objects")
		}
		base := objectInfo.Key[strings.LastIndex(objectInfo.Key, "/")+1:]
		if !strings.HasPrefix(base, "0=ocfl_object_") {
			continue
		}
		root := strings.TrimSuffix(strings.TrimSuffix(objectInfo.Key, base), "/")
		if it.seen[root] {
			continue
		}
		it.seen[root] = true
		return root, true, nil
	}
	return "", false, nil
}

func (it *objectRootIterator) Close() error {
	for range it.objectCh {
	}
	return nil
}

func (s3fs *FS) FileExists(path string) (bool, error) {
	_, err := s3fs.client.StatObject(s3fs.ctx, s3fs.bucket, key(path), minio.StatObjectOptions{})
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, ocflerrors.StorageIO(err, "cannot stat '%s'", path)
	}
	return true, nil
}

func (s3fs *FS) DirectoryExists(path string) (bool, error) {
	prefix := key(path) + "/"
	for objectInfo := range s3fs.client.ListObjects(s3fs.ctx, s3fs.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if objectInfo.Err != nil {
			return false, ocflerrors.StorageIO(objectInfo.Err, "cannot list '%s'", prefix)
		}
		return true, nil
	}
	return false, nil
}

func (s3fs *FS) Read(path string) (io.ReadCloser, error) {
	object, err := s3fs.client.GetObject(s3fs.ctx, s3fs.bucket, key(path), minio.GetObjectOptions{})
	if err != nil {
		return nil, ocflerrors.StorageIO(err, "cannot open '%s/%s'", s3fs.bucket, path)
	}
	// force resolution so that a missing key surfaces as ErrNotFound here
	if _, err := object.Stat(); err != nil {
		object.Close()
		if isNotExist(err) {
			return nil, ocflerrors.NotFound("file %s", path)
		}
		return nil, ocflerrors.StorageIO(err, "cannot stat '%s/%s'", s3fs.bucket, path)
	}
	return object, nil
}

func (s3fs *FS) ReadToString(path string) (string, error) {
	fp, err := s3fs.Read(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer fp.Close()
	data, err := io.ReadAll(fp)
	if err != nil {
		return "", ocflerrors.StorageIO(err, "cannot read '%s'", path)
	}
	return string(data), nil
}

func (s3fs *FS) Write(path string, content []byte, mediaType string) error {
	exists, err := s3fs.FileExists(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return ocflerrors.AlreadyExists("file %s", path)
	}
	_, err = s3fs.client.PutObject(s3fs.ctx, s3fs.bucket, key(path), bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: mediaType})
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot write '%s'", path)
	}
	return nil
}

func (s3fs *FS) CreateDirectories(_ string) error {
	return nil
}

func (s3fs *FS) CopyDirectoryOutOf(src string, dstLocal string) error {
	prefix := key(src) + "/"
	for objectInfo := range s3fs.client.ListObjects(s3fs.ctx, s3fs.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if objectInfo.Err != nil {
			return ocflerrors.StorageIO(objectInfo.Err, "cannot list '%s'", prefix)
		}
		rel := strings.TrimPrefix(objectInfo.Key, prefix)
		target := filepath.Join(dstLocal, filepath.FromSlash(rel))
		if err := s3fs.client.FGetObject(s3fs.ctx, s3fs.bucket, objectInfo.Key, target, minio.GetObjectOptions{}); err != nil {
			return ocflerrors.StorageIO(err, "cannot download '%s'", objectInfo.Key)
		}
	}
	return nil
}

func (s3fs *FS) CopyFileInto(srcLocal string, dst string, mediaType string) error {
	if _, err := s3fs.client.FPutObject(s3fs.ctx, s3fs.bucket, key(dst), srcLocal,
		minio.PutObjectOptions{ContentType: mediaType}); err != nil {
		return ocflerrors.StorageIO(err, "cannot upload '%s' to '%s'", srcLocal, dst)
	}
	return nil
}

func (s3fs *FS) CopyFileInternal(src, dst string) error {
	_, err := s3fs.client.CopyObject(s3fs.ctx,
		minio.CopyDestOptions{Bucket: s3fs.bucket, Object: key(dst)},
		minio.CopySrcOptions{Bucket: s3fs.bucket, Object: key(src)})
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot copy '%s' to '%s'", src, dst)
	}
	return nil
}

func (s3fs *FS) MoveDirectoryInto(srcLocal string, dst string) error {
	exists, err := s3fs.DirectoryExists(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return ocflerrors.AlreadyExists("directory %s", dst)
	}
	err = filepath.WalkDir(srcLocal, func(entry string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(srcLocal, entry)
		if rerr != nil {
			return rerr
		}
		return s3fs.CopyFileInto(entry, key(dst)+"/"+filepath.ToSlash(rel), "")
	})
	if err != nil {
		return ocflerrors.StorageIO(err, "cannot move '%s' into '%s'", srcLocal, dst)
	}
	if err := os.RemoveAll(srcLocal); err != nil {
		return ocflerrors.StorageIO(err, "cannot remove '%s' after move", srcLocal)
	}
	return nil
}

func (s3fs *FS) MoveDirectoryInternal(src, dst string) error {
	exists, err := s3fs.DirectoryExists(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return ocflerrors.AlreadyExists("directory %s", dst)
	}
	srcPrefix := key(src) + "/"
	dstPrefix := key(dst) + "/"
	var moved []string
	for objectInfo := range s3fs.client.ListObjects(s3fs.ctx, s3fs.bucket, minio.ListObjectsOptions{Prefix: srcPrefix, Recursive: true}) {
		if objectInfo.Err != nil {
			return ocflerrors.StorageIO(objectInfo.Err, "cannot list '%s'", srcPrefix)
		}
		rel := strings.TrimPrefix(objectInfo.Key, srcPrefix)
		if err := s3fs.CopyFileInternal(objectInfo.Key, dstPrefix+rel); err != nil {
			return errors.WithStack(err)
		}
		moved = append(moved, objectInfo.Key)
	}
	for _, k := range moved {
		if err := s3fs.client.RemoveObject(s3fs.ctx, s3fs.bucket, k, minio.RemoveObjectOptions{}); err != nil {
			return ocflerrors.StorageIO(err, "cannot remove '%s'", k)
		}
	}
	return nil
}

func (s3fs *FS) DeleteFile(path string) error {
	if err := s3fs.client.RemoveObject(s3fs.ctx, s3fs.bucket, key(path), minio.RemoveObjectOptions{}); err != nil {
		return ocflerrors.StorageIO(err, "cannot remove '%s'", path)
	}
	return nil
}

func (s3fs *FS) DeleteFiles(paths []string) error {
	var failed []error
	for _, path := range paths {
		if err := s3fs.DeleteFile(path); err != nil {
			s3fs.logger.Warn().Err(err).Msgf("cannot delete '%s'", path)
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return ocflerrors.StorageIO(errors.Combine(failed...), "cannot delete %d of %d files", len(failed), len(paths))
	}
	return nil
}

func (s3fs *FS) DeleteDirectory(path string) error {
	prefix := key(path) + "/"
	for objectInfo := range s3fs.client.ListObjects(s3fs.ctx, s3fs.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if objectInfo.Err != nil {
			return ocflerrors.StorageIO(objectInfo.Err, "cannot list '%s'", prefix)
		}
		if err := s3fs.client.RemoveObject(s3fs.ctx, s3fs.bucket, objectInfo.Key, minio.RemoveObjectOptions{}); err != nil {
			return ocflerrors.StorageIO(err, "cannot remove '%s'", objectInfo.Key)
		}
	}
	return nil
}

func (s3fs *FS) DeleteEmptyDirsDown(_ string) error {
	return nil
}

func (s3fs *FS) DeleteEmptyDirsUp(_ string) error {
	return nil
}

var (
	_ storage.Storage = &FS{}
)
