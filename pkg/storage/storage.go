package storage

import (
	"io"
)

type ListingType int

const (
	ListingFile ListingType = iota
	ListingDirectory
	ListingOther
)

func (t ListingType) String() string {
	switch t {
	case ListingFile:
		return "file"
	case ListingDirectory:
		return "directory"
	default:
		return "other"
	}
}

// Listing is one entry of a directory listing. Relative is the path
// relative to the listed directory, forward-slash separated.
type Listing struct {
	Relative string
	Type     ListingType
}

func FileListing(relative string) Listing      { return Listing{Relative: relative, Type: ListingFile} }
func DirectoryListing(relative string) Listing { return Listing{Relative: relative, Type: ListingDirectory} }
func OtherListing(relative string) Listing     { return Listing{Relative: relative, Type: ListingOther} }

// ObjectRootIterator lazily yields object root paths relative to the storage
// root. It is finite and single-pass; behavior under concurrent repository
// mutation is undefined.
type ObjectRootIterator interface {
	// Next returns the next object root path. It returns "" and false when
	// the iteration is exhausted.
	Next() (string, bool, error)
	Close() error
}

// Storage is the byte-level capability the repository engine runs on. All
// paths are forward-slash separated and relative to the storage root.
// Failures surface as ocflerrors.ErrStorageIO unless a more specific kind
// is documented on the operation.
type Storage interface {
	// ListDirectory lists one level. Fails with ErrNotFound if the path
	// does not exist.
	ListDirectory(path string) ([]Listing, error)
	// ListRecursive lists all files and empty directories below path;
	// non-empty directories are implicit.
	ListRecursive(path string) ([]Listing, error)
	// IterateObjects yields every object root under path. An object root is
	// a directory containing a "0=ocfl_object_*" namaste file.
	IterateObjects(path string) (ObjectRootIterator, error)

	FileExists(path string) (bool, error)
	DirectoryExists(path string) (bool, error)
	Read(path string) (io.ReadCloser, error)
	ReadToString(path string) (string, error)

	// Write writes content to path, creating parent directories as needed.
	// Fails with ErrAlreadyExists if the destination exists. Partial
	// contents are never visible to readers. The media type is advisory.
	Write(path string, content []byte, mediaType string) error
	CreateDirectories(path string) error

	CopyDirectoryOutOf(src string, dstLocal string) error
	// CopyFileInto copies a local file into storage, replacing any existing
	// destination. The media type is advisory.
	CopyFileInto(srcLocal string, dst string, mediaType string) error
	CopyFileInternal(src, dst string) error
	// MoveDirectoryInto moves a local directory into storage. Fails with
	// ErrAlreadyExists if the destination exists.
	MoveDirectoryInto(srcLocal string, dst string) error
	// MoveDirectoryInternal moves a directory within storage. Fails with
	// ErrAlreadyExists if the destination exists.
	MoveDirectoryInternal(src, dst string) error

	DeleteFile(path string) error
	// DeleteFiles deletes a batch best-effort; individual failures are
	// collected and reported together as one ErrStorageIO.
	DeleteFiles(paths []string) error
	DeleteDirectory(path string) error
	// DeleteEmptyDirsDown removes all empty directories below path.
	DeleteEmptyDirsDown(path string) error
	// DeleteEmptyDirsUp deletes path and every parent that becomes empty,
	// stopping below the storage root.
	DeleteEmptyDirsUp(path string) error
}
