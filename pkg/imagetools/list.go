package imagetools

import (
	"io"
	"sort"

	"code.cloudfoundry.org/bytefmt"
	"github.com/vorteil/extfs/pkg/ext4"
)

// ListEntry ...
type ListEntry struct {
	Name        string
	Inode       uint32
	Size        int64
	SizeHuman   string
	Permissions string
	IsDir       bool
}

// ListReport ...
type ListReport struct {
	Path    string
	Entries []ListEntry
}

// ListImageFile lists the contents of a directory within the image, sorted by
// name. The '.' and '..' entries are omitted.
func ListImageFile(fsys *ext4.FileSystem, imageFilePath string) (ListReport, error) {

	listOut := ListReport{Path: imageFilePath}

	ino, err := fsys.ResolvePathToInodeNo(imageFilePath)
	if err != nil {
		return listOut, err
	}

	it, err := fsys.ReadDir(ino)
	if err != nil {
		return listOut, err
	}

	for {

		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return listOut, err
		}

		if entry.Name == "." || entry.Name == ".." {
			continue
		}

		md, err := fsys.StatInode(entry.Ino)
		if err != nil {
			return listOut, err
		}

		listOut.Entries = append(listOut.Entries, ListEntry{
			Name:        entry.Name,
			Inode:       entry.Ino,
			Size:        md.Size(),
			SizeHuman:   bytefmt.ByteSize(uint64(md.Size())),
			Permissions: md.ModeString(),
			IsDir:       md.IsDir(),
		})

	}

	sort.Slice(listOut.Entries, func(i, j int) bool {
		return listOut.Entries[i].Name < listOut.Entries[j].Name
	})

	return listOut, nil

}
