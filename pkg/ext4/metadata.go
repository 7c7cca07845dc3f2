package ext4

import (
	"fmt"
	"time"
)

// Metadata is a stat-like view of one inode.
type Metadata struct {
	Ino   uint32
	Inode *Inode

	fs *FileSystem
}

// Stat resolves a path, following symlinks, and returns the metadata of the
// inode it lands on.
func (fs *FileSystem) Stat(path string) (*Metadata, error) {

	ino, err := fs.ResolvePathToInodeNo(path)
	if err != nil {
		return nil, err
	}

	return fs.StatInode(ino)

}

// Lstat behaves like Stat except that a symlink at the final path component
// is described rather than followed.
func (fs *FileSystem) Lstat(path string) (*Metadata, error) {

	ino, err := fs.resolvePath(path, false)
	if err != nil {
		return nil, err
	}

	return fs.StatInode(ino)

}

func (fs *FileSystem) StatInode(ino uint32) (*Metadata, error) {

	inode, err := fs.ResolveInode(ino)
	if err != nil {
		return nil, err
	}

	return &Metadata{
		Ino:   ino,
		Inode: inode,
		fs:    fs,
	}, nil

}

func (md *Metadata) Size() int64 {
	return md.Inode.Size()
}

func (md *Metadata) UID() uint32 {
	return md.Inode.UID()
}

func (md *Metadata) GID() uint32 {
	return md.Inode.GID()
}

func (md *Metadata) Links() int {
	return int(md.Inode.Links)
}

func (md *Metadata) IsDir() bool {
	return md.Inode.IsDir()
}

func (md *Metadata) IsRegularFile() bool {
	return md.Inode.IsRegularFile()
}

func (md *Metadata) IsSymlink() bool {
	return md.Inode.IsSymlink()
}

func (md *Metadata) ModTime() time.Time {
	return md.Inode.ModificationTime()
}

func (md *Metadata) AccessTime() time.Time {
	return md.Inode.LastAccessTime()
}

func (md *Metadata) ChangeTime() time.Time {
	return md.Inode.LastChangeTime()
}

func (md *Metadata) CreationTime() time.Time {
	return md.Inode.CreationTime()
}

func (md *Metadata) FileType() (uint8, error) {
	return md.Inode.FileType()
}

// OccupiedSize returns the number of bytes of storage charged to the inode,
// which can be well below Size for sparse files.
func (md *Metadata) OccupiedSize() int64 {
	return int64(md.Inode.Sectors(md.fs.super)) * 512
}

// ModeString renders the inode's type and permission bits the way ls does.
func (md *Metadata) ModeString() string {

	var t byte
	switch md.Inode.Mode & InodeTypeMask {
	case InodeTypeFIFO:
		t = 'p'
	case InodeTypeCharDevice:
		t = 'c'
	case InodeTypeDirectory:
		t = 'd'
	case InodeTypeBlockDevice:
		t = 'b'
	case InodeTypeRegularFile:
		t = '-'
	case InodeTypeSymlink:
		t = 'l'
	case InodeTypeSocket:
		t = 's'
	default:
		t = '?'
	}

	bits := []byte("rwxrwxrwx")
	perms := md.Inode.Permissions()
	for i := 0; i < 9; i++ {
		if perms&(1<<uint(8-i)) == 0 {
			bits[i] = '-'
		}
	}

	return fmt.Sprintf("%c%s", t, bits)

}
