package ext4

import (
	"fmt"
	"strings"
)

// ResolvePathToInodeNo walks an absolute slash-separated path from the root
// directory and returns the inode number it lands on. Symbolic links along
// the way are followed, including one at the final component.
func (fs *FileSystem) ResolvePathToInodeNo(path string) (uint32, error) {
	return fs.resolvePath(path, true)
}

// resolvePath performs iterative path resolution. Components are kept in a
// queue so a symlink target can be spliced in front of whatever remains,
// which is also how '.' and '..' entries come out naturally: both are real
// directory entries and resolve through an ordinary lookup.
func (fs *FileSystem) resolvePath(path string, followFinal bool) (uint32, error) {

	queue := strings.Split(path, "/")
	ino := uint32(RootDirInode)
	hops := 0

	for len(queue) > 0 {

		name := queue[0]
		queue = queue[1:]

		if name == "" || name == "." {
			continue
		}

		inode, err := fs.ResolveInode(ino)
		if err != nil {
			return 0, err
		}

		if !inode.IsDir() {
			return 0, fmt.Errorf("%w: inode %d on the way to %q", ErrNotADirectory, ino, name)
		}

		entry, err := fs.lookup(ino, inode, name)
		if err != nil {
			return 0, err
		}

		child, err := fs.ResolveInode(entry.Ino)
		if err != nil {
			return 0, err
		}

		if child.IsSymlink() && (len(queue) > 0 || followFinal) {

			hops++
			if hops > MaxSymlinkDepth {
				return 0, fmt.Errorf("%w: resolving %q", ErrTooManySymlinks, path)
			}

			target, err := fs.readLinkInode(entry.Ino, child)
			if err != nil {
				return 0, err
			}
			if target == "" {
				return 0, fmt.Errorf("%w: inode %d is a symlink with an empty target", ErrNotFound, entry.Ino)
			}

			if strings.HasPrefix(target, "/") {
				ino = RootDirInode
			}
			queue = append(strings.Split(target, "/"), queue...)
			continue

		}

		ino = entry.Ino

	}

	return ino, nil

}

// readLinkInode returns the target of a symlink inode. Short targets live
// directly inside the inode's block area; longer ones are stored through the
// regular data path.
func (fs *FileSystem) readLinkInode(ino uint32, inode *Inode) (string, error) {

	if !inode.IsSymlink() {
		return "", fmt.Errorf("%w: inode %d", ErrNotSymlink, ino)
	}

	// symlink targets never exceed one block, so a larger size can only be
	// garbage in the high size word
	size := inode.Size()
	if size >= fs.super.BlockSize() {
		return "", fmt.Errorf("%w: symlink inode %d claims a %d byte target", ErrInvalidInode, ino, size)
	}

	if inode.inlineSymlink() {
		return string(inode.Block[:inode.SizeLo]), nil
	}

	f := newFile(fs, ino, inode)
	target := make([]byte, size)
	_, err := f.ReadAt(target, 0)
	if err != nil {
		return "", err
	}

	return string(target), nil

}

// ReadLink returns the target of the symlink at the given path. The final
// component itself is not followed; everything leading up to it is.
func (fs *FileSystem) ReadLink(path string) (string, error) {

	ino, err := fs.resolvePath(path, false)
	if err != nil {
		return "", err
	}

	inode, err := fs.ResolveInode(ino)
	if err != nil {
		return "", err
	}

	return fs.readLinkInode(ino, inode)

}
