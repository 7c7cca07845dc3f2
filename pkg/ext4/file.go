package ext4

import (
	"fmt"
	"io"
)

// File is a read-only handle on the contents of one inode. It implements
// io.Reader, io.ReaderAt, and io.Seeker. Holes and unwritten extents read
// back as zeroes without touching the underlying storage.
type File struct {
	fs     *FileSystem
	ino    uint32
	inode  *Inode
	size   int64
	offset int64
}

func newFile(fs *FileSystem, ino uint32, inode *Inode) *File {
	return &File{
		fs:    fs,
		ino:   ino,
		inode: inode,
		size:  inode.Size(),
	}
}

// OpenFile resolves a path, following symlinks, and returns a handle on the
// regular file it names.
func (fs *FileSystem) OpenFile(path string) (*File, error) {

	ino, err := fs.ResolvePathToInodeNo(path)
	if err != nil {
		return nil, err
	}

	return fs.OpenInode(ino)

}

// OpenInode returns a handle on the regular file at inode number ino.
func (fs *FileSystem) OpenInode(ino uint32) (*File, error) {

	inode, err := fs.ResolveInode(ino)
	if err != nil {
		return nil, err
	}

	if !inode.IsRegularFile() {
		return nil, fmt.Errorf("%w: inode %d", ErrNotRegularFile, ino)
	}

	return newFile(fs, ino, inode), nil

}

func (f *File) Ino() uint32 {
	return f.ino
}

func (f *File) Size() int64 {
	return f.size
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes starting at the given offset within the file,
// crossing block boundaries as needed. It satisfies the io.ReaderAt contract:
// a read that runs off the end of the file returns io.EOF alongside the bytes
// that were available.
func (f *File) ReadAt(p []byte, off int64) (int, error) {

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	if off >= f.size {
		return 0, io.EOF
	}

	var short bool
	if off+int64(len(p)) > f.size {
		p = p[:f.size-off]
		short = true
	}

	bs := f.fs.super.BlockSize()
	n := 0

	for n < len(p) {

		logical := (off + int64(n)) / bs
		delta := (off + int64(n)) % bs

		chunk := p[n:]
		if int64(len(chunk)) > bs-delta {
			chunk = chunk[:bs-delta]
		}

		mapping, err := f.fs.MapBlock(f.inode, logical)
		if err != nil {
			return n, err
		}

		if mapping.Hole || mapping.Unwritten {
			for i := range chunk {
				chunk[i] = 0
			}
		} else {
			_, err = f.fs.src.ReadAt(chunk, int64(mapping.Block)*bs+delta)
			if err != nil {
				return n, ioErr(err, "reading block %d of inode %d", logical, f.ino)
			}
		}

		n += len(chunk)

	}

	if short {
		return n, io.EOF
	}

	return n, nil

}

// Seek adjusts the file cursor used by Read. Seeking beyond the end of the
// file is allowed; reads from there return io.EOF.
func (f *File) Seek(offset int64, whence int) (int64, error) {

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = f.size + offset
	default:
		return f.offset, fmt.Errorf("invalid whence %d", whence)
	}

	if next < 0 {
		return f.offset, fmt.Errorf("cannot seek to negative offset %d", next)
	}

	f.offset = next
	return next, nil

}

func (f *File) Write(p []byte) (int, error) {
	return 0, ErrUnsupported
}

// ReadFile reads the entire contents of the regular file at the given path.
func (fs *FileSystem) ReadFile(path string) ([]byte, error) {

	f, err := fs.OpenFile(path)
	if err != nil {
		return nil, err
	}

	data := make([]byte, f.Size())
	_, err = f.ReadAt(data, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}

	return data, nil

}
