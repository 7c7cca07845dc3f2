package ext4

import (
	"errors"
	"io"
	"os"

	"github.com/vorteil/extfs/pkg/elog"
)

// LoadArgs contains the arguments for a Load operation. Only Source is
// mandatory.
type LoadArgs struct {
	// Source provides random access to the raw file-system image.
	Source io.ReaderAt

	// Logger receives progress and diagnostic output. Leave nil to
	// discard it.
	Logger elog.Logger

	// VerifyChecksums enables the warning-class checksum passes: group
	// descriptors are verified during Load and directory blocks during
	// iteration.
	VerifyChecksums bool
}

// FileSystem is a decoded ext2/ext3/ext4 file-system. All operations are
// read-only and safe for concurrent use: nothing is cached or mutated after
// Load returns.
type FileSystem struct {
	src    io.ReaderAt
	closer io.Closer
	log    elog.Logger
	super  *Superblock
	groups []*BlockGroupDescriptor
	verify bool
}

func (args *LoadArgs) validate() error {
	if args.Source == nil {
		return errors.New("no image source provided")
	}
	return nil
}

// Load validates the superblock of the image behind args.Source and reads in
// every block group descriptor.
func Load(args *LoadArgs) (*FileSystem, error) {

	err := args.validate()
	if err != nil {
		return nil, err
	}

	log := args.Logger
	if log == nil {
		log = &elog.NopLogger{}
	}
	log = log.Scoped("ext4")

	sb, err := loadSuperblock(args.Source)
	if err != nil {
		return nil, err
	}

	log.Debugf("superblock: %d blocks of %d bytes in %d groups, features %#x/%#x/%#x",
		sb.TotalBlocks(), sb.BlockSize(), sb.GroupCount(),
		sb.FeatureCompat, sb.FeatureIncompat, sb.FeatureROCompat)

	groups, err := loadDescriptors(args.Source, sb)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		src:    args.Source,
		log:    log,
		super:  sb,
		groups: groups,
		verify: args.VerifyChecksums,
	}

	if fs.verify {
		if sb.HasROCompat(ROCompatMetadataCsum) {
			if expected := superblockChecksum(sb); expected != sb.Checksum {
				log.Warnf("%v", &ChecksumError{
					Item:     "superblock",
					Expected: expected,
					Actual:   sb.Checksum,
				})
			}
		}
		for _, warning := range fs.VerifyDescriptors() {
			log.Warnf("%v", warning)
		}
	}

	return fs, nil

}

// Open is a convenience constructor that loads the file-system image at the
// given path. Closing the FileSystem closes the file.
func Open(path string) (*FileSystem, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fs, err := Load(&LoadArgs{Source: f})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	fs.closer = f
	return fs, nil

}

// Close releases the underlying file if the FileSystem owns one.
func (fs *FileSystem) Close() error {
	if fs.closer != nil {
		return fs.closer.Close()
	}
	return nil
}

// Superblock returns the decoded superblock.
func (fs *FileSystem) Superblock() *Superblock {
	return fs.super
}

// Descriptor returns the block group descriptor for group g.
func (fs *FileSystem) Descriptor(g int64) (*BlockGroupDescriptor, error) {
	if g < 0 || g >= int64(len(fs.groups)) {
		return nil, errors.New("block group out of range")
	}
	return fs.groups[g], nil
}

func (fs *FileSystem) BlockSize() int64 {
	return fs.super.BlockSize()
}

// Label returns the volume label.
func (fs *FileSystem) Label() string {
	return fs.super.VolumeLabel()
}
