package ext4

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// FTYPE constants are used in directory entries to identify file types without requiring inode lookups.
const (
	FTypeUnknown     = 0x0 // FTYPE_UNKNOWN
	FTypeRegularFile = 0x1 // FTYPE_REGULAR_FILE
	FTypeDir         = 0x2 // FTYPE_DIR
	FTypeCharDevice  = 0x3 // FTYPE_CHRDEV
	FTypeBlockDevice = 0x4 // FTYPE_BLKDEV
	FTypeFIFO        = 0x5 // FTYPE_FIFO
	FTypeSocket      = 0x6 // FTYPE_SOCK
	FTypeSymlink     = 0x7 // FTYPE_SYMLINK
)

const (
	direntHeaderSize = 8
	direntTailSize   = 12
	DirentTailFType  = 0xDE // EXT4_FT_DIR_CSUM
)

// DirectoryEntry is one name within a directory.
type DirectoryEntry struct {
	Ino      uint32
	FileType uint8
	Name     string
}

func (e *DirectoryEntry) IsDir() bool {
	return e.FileType == FTypeDir
}

func (e *DirectoryEntry) IsSymlink() bool {
	return e.FileType == FTypeSymlink
}

// dirent is the decoded header of one on-disk directory entry.
type dirent struct {
	ino    uint32
	recLen int64
	ftype  uint8
	name   []byte
	tail   bool
}

// parseDirent decodes the directory entry starting at pos within a directory
// block. File-systems without the filetype feature store a 16-bit name length
// where newer ones keep the file type byte.
func (fs *FileSystem) parseDirent(block []byte, pos int64) (*dirent, error) {

	if pos+direntHeaderSize > int64(len(block)) {
		return nil, fmt.Errorf("%w: entry at offset %d overruns its block", ErrCorruptDirectoryEntry, pos)
	}

	d := &dirent{
		ino:    binary.LittleEndian.Uint32(block[pos:]),
		recLen: int64(binary.LittleEndian.Uint16(block[pos+4:])),
	}

	var nameLen int64
	if fs.super.HasIncompat(IncompatFiletype) {
		nameLen = int64(block[pos+6])
		d.ftype = block[pos+7]
	} else {
		nameLen = int64(binary.LittleEndian.Uint16(block[pos+6:]))
		d.ftype = FTypeUnknown
	}

	if d.ino == 0 && d.recLen == direntTailSize && nameLen == 0 && d.ftype == DirentTailFType {
		if pos+direntTailSize > int64(len(block)) {
			return nil, fmt.Errorf("%w: checksum tail at offset %d overruns its block", ErrCorruptDirectoryEntry, pos)
		}
		d.tail = true
		return d, nil
	}

	if d.recLen < direntHeaderSize || d.recLen%4 != 0 || pos+d.recLen > int64(len(block)) {
		return nil, fmt.Errorf("%w: entry at offset %d has record length %d", ErrCorruptDirectoryEntry, pos, d.recLen)
	}

	if direntHeaderSize+nameLen > d.recLen {
		return nil, fmt.Errorf("%w: entry at offset %d has name length %d exceeding its record", ErrCorruptDirectoryEntry, pos, nameLen)
	}

	d.name = block[pos+direntHeaderSize : pos+direntHeaderSize+nameLen]
	return d, nil

}

// DirIterator walks the entries of a directory one block at a time. Blocks
// are fetched lazily so listing the front of a huge directory stays cheap.
type DirIterator struct {
	fs       *FileSystem
	ino      uint32
	inode    *Inode
	size     int64
	blockNo  int64
	block    []byte
	pos      int64
	warnings []error
}

// ReadDir returns an iterator over the entries of the directory at inode
// number ino. The '.' and '..' entries are reported like any others.
func (fs *FileSystem) ReadDir(ino uint32) (*DirIterator, error) {

	inode, err := fs.ResolveInode(ino)
	if err != nil {
		return nil, err
	}

	if !inode.IsDir() {
		return nil, fmt.Errorf("%w: inode %d", ErrNotADirectory, ino)
	}

	return &DirIterator{
		fs:      fs,
		ino:     ino,
		inode:   inode,
		size:    inode.Size(),
		blockNo: -1,
	}, nil

}

// Reset rewinds the iterator to the first entry.
func (it *DirIterator) Reset() {
	it.blockNo = -1
	it.block = nil
	it.pos = 0
	it.warnings = nil
}

// Warnings returns the non-fatal findings accumulated so far, one
// ChecksumError per directory block with a stale checksum tail.
func (it *DirIterator) Warnings() []error {
	return it.warnings
}

func (it *DirIterator) loadNextBlock() error {

	bs := it.fs.super.BlockSize()
	next := it.blockNo + 1
	if next*bs >= it.size {
		return io.EOF
	}

	mapping, err := it.fs.MapBlock(it.inode, next)
	if err != nil {
		return err
	}
	if mapping.Hole || mapping.Unwritten {
		return fmt.Errorf("%w: directory block %d of inode %d is unallocated", ErrCorruptDirectoryEntry, next, it.ino)
	}

	if it.block == nil {
		it.block = make([]byte, bs)
	}
	_, err = it.fs.src.ReadAt(it.block, int64(mapping.Block)*bs)
	if err != nil {
		return ioErr(err, "reading directory block %d of inode %d", next, it.ino)
	}

	it.blockNo = next
	it.pos = 0
	return nil

}

// Next returns the next live directory entry, or io.EOF once the directory is
// exhausted. Unused entries are skipped silently and checksum tails are
// verified when the file-system was loaded with verification enabled.
func (it *DirIterator) Next() (*DirectoryEntry, error) {

	for {

		if it.block == nil || it.pos >= int64(len(it.block)) {
			err := it.loadNextBlock()
			if err != nil {
				return nil, err
			}
		}

		d, err := it.fs.parseDirent(it.block, it.pos)
		if err != nil {
			return nil, err
		}

		if d.tail {
			if it.fs.verify {
				expected := direntBlockChecksum(it.fs.super, it.ino, it.inode.Generation, it.block[:it.pos])
				actual := binary.LittleEndian.Uint32(it.block[it.pos+8:])
				if expected != actual {
					it.warnings = append(it.warnings, &ChecksumError{
						Item:     fmt.Sprintf("directory block %d of inode %d", it.blockNo, it.ino),
						Expected: expected,
						Actual:   actual,
					})
				}
			}
			it.pos += d.recLen
			continue
		}

		it.pos += d.recLen

		if d.ino == 0 {
			continue
		}

		return &DirectoryEntry{
			Ino:      d.ino,
			FileType: d.ftype,
			Name:     string(d.name),
		}, nil

	}

}

// scanBlockForName searches one directory block for an exact name match.
func (fs *FileSystem) scanBlockForName(block []byte, name string) (*DirectoryEntry, error) {

	var pos int64
	for pos < int64(len(block)) {

		d, err := fs.parseDirent(block, pos)
		if err != nil {
			return nil, err
		}

		pos += d.recLen

		if d.tail || d.ino == 0 {
			continue
		}

		if string(d.name) == name {
			return &DirectoryEntry{
				Ino:      d.ino,
				FileType: d.ftype,
				Name:     name,
			}, nil
		}

	}

	return nil, nil

}

// lookup finds a single name within the directory at inode number ino. Htree
// directories are searched through their index when the hash version is
// supported; anything else degrades to a linear scan, which always works
// because htree interior data hides inside unused directory entries.
func (fs *FileSystem) lookup(ino uint32, inode *Inode, name string) (*DirectoryEntry, error) {

	if inode.Flags&Ext4IndexFL != 0 && name != "." && name != ".." {
		entry, err := fs.htreeLookup(ino, inode, name)
		if err == nil && entry != nil {
			return entry, nil
		}
		if err != nil {
			fs.log.Debugf("htree lookup for %q in inode %d failed, scanning linearly: %v", name, ino, err)
		}
	}

	it := &DirIterator{
		fs:      fs,
		ino:     ino,
		inode:   inode,
		size:    inode.Size(),
		blockNo: -1,
	}

	for {
		entry, err := it.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		if err != nil {
			return nil, err
		}
		if entry.Name == name {
			return entry, nil
		}
	}

}

const (
	htreeRootInfoOffset  = 0x18
	htreeRootEntryOffset = 0x20
	htreeNodeEntryOffset = 0x8
	htreeInfoLength      = 0x8
	htreeMaxLevels       = 2
)

func (fs *FileSystem) readDirBlock(inode *Inode, logical int64) ([]byte, error) {

	bs := fs.super.BlockSize()
	mapping, err := fs.MapBlock(inode, logical)
	if err != nil {
		return nil, err
	}
	if mapping.Hole || mapping.Unwritten {
		return nil, fmt.Errorf("%w: directory block %d is unallocated", ErrCorruptDirectoryEntry, logical)
	}

	block := make([]byte, bs)
	_, err = fs.src.ReadAt(block, int64(mapping.Block)*bs)
	if err != nil {
		return nil, ioErr(err, "reading directory block %d", logical)
	}

	return block, nil

}

// htreeLookup descends the directory's hash index to the single leaf block
// that could contain the name. A nil entry with a nil error means a clean
// miss, which the caller double-checks with a linear scan in case of hash
// collisions spilling across leaves.
func (fs *FileSystem) htreeLookup(ino uint32, inode *Inode, name string) (*DirectoryEntry, error) {

	root, err := fs.readDirBlock(inode, 0)
	if err != nil {
		return nil, err
	}

	if int64(len(root)) < htreeRootEntryOffset+8 {
		return nil, fmt.Errorf("%w: index root too small", ErrCorruptDirectoryEntry)
	}

	if root[htreeRootInfoOffset+5] != htreeInfoLength {
		return nil, fmt.Errorf("%w: unexpected index info length %d", ErrCorruptDirectoryEntry, root[htreeRootInfoOffset+5])
	}

	// the index root records the hash version the directory was built with,
	// which can differ from the superblock's default
	version := root[htreeRootInfoOffset+4]
	hash, ok := dentryHash(fs.super, version, name)
	if !ok {
		return nil, fmt.Errorf("unsupported directory hash version %d", version)
	}

	levels := int(root[htreeRootInfoOffset+6])
	if levels > htreeMaxLevels {
		return nil, fmt.Errorf("%w: index depth %d", ErrCorruptDirectoryEntry, levels)
	}

	offset := int64(htreeRootEntryOffset)

	for {

		logical, err := fs.htreeSelectChild(root, offset, hash)
		if err != nil {
			return nil, err
		}

		if levels == 0 {
			leaf, err := fs.readDirBlock(inode, logical)
			if err != nil {
				return nil, err
			}
			return fs.scanBlockForName(leaf, name)
		}

		root, err = fs.readDirBlock(inode, logical)
		if err != nil {
			return nil, err
		}
		offset = htreeNodeEntryOffset
		levels--

	}

}

// htreeSelectChild picks the child block from the count/limit entry table
// starting at the given offset. The first entry covers every hash below the
// second entry's, so its own hash field is the table header.
func (fs *FileSystem) htreeSelectChild(block []byte, offset int64, hash uint32) (int64, error) {

	if offset+8 > int64(len(block)) {
		return 0, fmt.Errorf("%w: index node too small", ErrCorruptDirectoryEntry)
	}

	limit := int64(binary.LittleEndian.Uint16(block[offset:]))
	count := int64(binary.LittleEndian.Uint16(block[offset+2:]))

	if count < 1 || count > limit || offset+count*8 > int64(len(block)) {
		return 0, fmt.Errorf("%w: index node claims %d/%d entries", ErrCorruptDirectoryEntry, count, limit)
	}

	// the count/limit header overlays the first entry's hash field, so the
	// entry table starts at the header itself and the first entry matches
	// every hash below the second entry's
	entries := block[offset:]

	i := sort.Search(int(count-1), func(i int) bool {
		return binary.LittleEndian.Uint32(entries[(i+1)*8:]) > hash
	})

	child := binary.LittleEndian.Uint32(entries[i*8+4:])
	return int64(child), nil

}
