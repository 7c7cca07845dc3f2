package ext4

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the decoder. Callers should match them with
// errors.Is since most are returned wrapped with extra context.
var (
	// ErrIO wraps any failure reported by the underlying storage object,
	// including short reads.
	ErrIO = errors.New("image IO failed")

	// ErrInvalidMagic means the superblock doesn't contain a valid ext
	// file-system signature.
	ErrInvalidMagic = errors.New("bad superblock magic number")

	// ErrUnsupportedBlockSize means the superblock declares a block size
	// outside of the legal 1 KiB - 64 KiB range.
	ErrUnsupportedBlockSize = errors.New("unsupported block size")

	// ErrUnsupportedFeature means the file-system uses an incompatible
	// feature this reader does not implement. Proceeding would misread
	// on-disk data, so the load is aborted entirely.
	ErrUnsupportedFeature = errors.New("unsupported incompatible feature")

	ErrCorruptExtentTree     = errors.New("corrupt extent tree")
	ErrCorruptDirectoryEntry = errors.New("corrupt directory entry")

	ErrInvalidInode    = errors.New("invalid inode number")
	ErrNotFound        = errors.New("file not found")
	ErrNotADirectory   = errors.New("not a directory")
	ErrNotRegularFile  = errors.New("not a regular file")
	ErrNotSymlink      = errors.New("not a symlink")
	ErrUnknownFileType = errors.New("unknown file type")
	ErrTooManySymlinks = errors.New("too many levels of symbolic links")

	// ErrUnsupported is returned by every mutating operation. There is no
	// write path.
	ErrUnsupported = errors.New("file-system is read-only")
)

// ChecksumError is a warning-class finding produced by the optional
// verification passes. It never aborts an operation: plenty of valid images
// predate the checksum features or carry benign stale checksums.
type ChecksumError struct {
	Item     string
	Expected uint32
	Actual   uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch on %s: expected %#x but got %#x", e.Item, e.Expected, e.Actual)
}

func ioErr(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w (%v)", fmt.Sprintf(format, args...), ErrIO, err)
}
