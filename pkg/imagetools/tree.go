package imagetools

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vorteil/extfs/pkg/ext4"
)

// TreeReport ...
type TreeReport struct {
	Name     string
	Children []TreeReport
}

func (tR *TreeReport) String() string {
	var lastFile bool
	tStr := fmt.Sprintf("%s\n", tR.Name)
	for i := range tR.Children {
		if i == len(tR.Children)-1 {
			lastFile = true
		}

		tStr = tR.Children[i].string(tStr, 0, lastFile)
	}

	return strings.TrimSpace(tStr)
}

func (tR *TreeReport) string(tStr string, depth int, last bool) string {
	var lastFile bool

	var depthString string
	if depth > 0 {
		depthString = "│" + strings.Repeat("    ", depth)
	}
	depth = depth + 1

	if last {
		tStr = fmt.Sprintf("%s%s└── %s\n", tStr, depthString, tR.Name)
	} else {
		tStr = fmt.Sprintf("%s%s├── %s\n", tStr, depthString, tR.Name)
	}

	for i := range tR.Children {
		if i == len(tR.Children)-1 {
			lastFile = true
		}
		tStr = tR.Children[i].string(tStr, depth, lastFile)

	}

	return tStr
}

// TreeImageFile renders the directory hierarchy beneath a path within the
// image. Symlinks are shown but never followed, so cycles cannot hang the
// walk.
func TreeImageFile(fsys *ext4.FileSystem, imageFilePath string) (TreeReport, error) {

	ino, err := fsys.ResolvePathToInodeNo(imageFilePath)
	if err != nil {
		return TreeReport{}, err
	}

	return treeImageFileRecurse(fsys, ino, imageFilePath, imageFilePath)

}

func treeImageFileRecurse(fsys *ext4.FileSystem, ino uint32, path, name string) (TreeReport, error) {

	treeOut := TreeReport{
		Name:     name,
		Children: make([]TreeReport, 0),
	}

	md, err := fsys.StatInode(ino)
	if err != nil {
		return treeOut, err
	}

	if !md.IsDir() {
		return treeOut, nil
	}

	it, err := fsys.ReadDir(ino)
	if err != nil {
		return treeOut, err
	}

	var entries []ext4.DirectoryEntry

	for {
		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return treeOut, err
		}
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	for i := range entries {

		entry := &entries[i]

		if entry.IsSymlink() {
			target, err := fsys.ReadLink(path + "/" + entry.Name)
			if err != nil {
				return treeOut, err
			}
			treeOut.Children = append(treeOut.Children, TreeReport{
				Name:     fmt.Sprintf("%s -> %s", entry.Name, target),
				Children: make([]TreeReport, 0),
			})
			continue
		}

		child, err := treeImageFileRecurse(fsys, entry.Ino, path+"/"+entry.Name, entry.Name)
		if err != nil {
			return treeOut, err
		}
		treeOut.Children = append(treeOut.Children, child)

	}

	return treeOut, nil

}
