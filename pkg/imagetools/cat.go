package imagetools

import (
	"io"

	"github.com/vorteil/extfs/pkg/ext4"
)

// CatImageFile returns a reader over the contents of a regular file within
// the image, following symlinks.
func CatImageFile(fsys *ext4.FileSystem, imageFilePath string) (io.Reader, error) {
	return fsys.OpenFile(imageFilePath)
}
