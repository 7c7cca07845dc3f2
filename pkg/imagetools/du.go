package imagetools

import (
	"io"
	"path/filepath"

	"code.cloudfoundry.org/bytefmt"
	"github.com/vorteil/extfs/pkg/ext4"
)

// DUImageReport Returns a disk usage report
type DUImageReport struct {
	FreeSpace      int64
	FreeSpaceHuman string
	ImageFiles     []DUImageInfo
}

// DUImageInfo ...
type DUImageInfo struct {
	FilePath  string
	FileSize  int64
	SizeHuman string
}

// DUImageFile returns the disk usage calculations of a path (imageFilePath)
// within the image. Usage counts occupied blocks rather than file sizes, so
// sparse files report only what they actually store. Results deeper than
// maxDepth are folded into their parents; a negative maxDepth means no limit.
func DUImageFile(fsys *ext4.FileSystem, imageFilePath string, maxDepth int, all bool) (DUImageReport, error) {

	var duOut DUImageReport
	var depth = 0

	var recurse func(ino uint32, name string) (int64, error)
	recurse = func(ino uint32, name string) (int64, error) {

		depth++
		defer func() {
			depth--
		}()

		md, err := fsys.StatInode(ino)
		if err != nil {
			return 0, err
		}

		size := md.OccupiedSize()
		if !md.IsDir() {
			return size, nil
		}

		it, err := fsys.ReadDir(ino)
		if err != nil {
			return 0, err
		}

		var entries []ext4.DirectoryEntry
		for {
			entry, err := it.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return 0, err
			}
			if entry.Name == "." || entry.Name == ".." {
				continue
			}
			entries = append(entries, *entry)
		}

		for i := range entries {

			entry := &entries[i]
			child := filepath.ToSlash(filepath.Join(name, entry.Name))

			delta, err := recurse(entry.Ino, child)
			if err != nil {
				return 0, err
			}

			if all || entry.IsDir() {
				if maxDepth < 0 || depth <= maxDepth {
					duOut.ImageFiles = append(duOut.ImageFiles, DUImageInfo{
						FilePath:  child,
						FileSize:  delta,
						SizeHuman: bytefmt.ByteSize(uint64(delta)),
					})
				}
			}

			size += delta

		}

		return size, nil

	}

	ino, err := fsys.ResolvePathToInodeNo(imageFilePath)
	if err != nil {
		return duOut, err
	}

	total, err := recurse(ino, imageFilePath)
	if err != nil {
		return duOut, err
	}

	duOut.ImageFiles = append(duOut.ImageFiles, DUImageInfo{
		FilePath:  imageFilePath,
		FileSize:  total,
		SizeHuman: bytefmt.ByteSize(uint64(total)),
	})

	sb := fsys.Superblock()
	duOut.FreeSpace = int64(sb.FreeBlocks()) * fsys.BlockSize()
	duOut.FreeSpaceHuman = bytefmt.ByteSize(uint64(duOut.FreeSpace))

	return duOut, nil

}
