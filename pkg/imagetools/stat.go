package imagetools

import (
	"path/filepath"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/sirupsen/logrus"
	"github.com/vorteil/extfs/pkg/ext4"
)

// StatFileReport ...
type StatFileReport struct {
	FileName    string
	FileType    string
	Size        int64
	SizeHuman   string
	Inode       uint32
	UID         uint32
	GID         uint32
	Links       int
	Permissions string
	Access      time.Time
	Modify      time.Time
	Create      time.Time
}

func fileTypeString(ftype uint8) string {
	switch ftype {
	case ext4.FTypeDir:
		return "directory"
	case ext4.FTypeSymlink:
		return "symbolic link"
	case ext4.FTypeRegularFile:
		return "regular file"
	default:
		return "special file"
	}
}

// StatImageFile builds a stat-style report for a path within the image. A
// symlink at the final path component is reported itself, matching stat's
// behaviour on a live system.
func StatImageFile(fsys *ext4.FileSystem, imageFilePath string) (StatFileReport, error) {

	var statOut StatFileReport

	logrus.Debugf("statting %s", imageFilePath)

	md, err := fsys.Lstat(imageFilePath)
	if err != nil {
		return statOut, err
	}

	ftype, err := md.FileType()
	if err != nil {
		return statOut, err
	}

	statOut.FileName = filepath.Base(filepath.ToSlash(imageFilePath))
	statOut.FileType = fileTypeString(ftype)
	statOut.Size = md.Size()
	statOut.SizeHuman = bytefmt.ByteSize(uint64(md.Size()))
	statOut.Inode = md.Ino
	statOut.UID = md.UID()
	statOut.GID = md.GID()
	statOut.Links = md.Links()
	statOut.Permissions = md.ModeString()
	statOut.Access = md.AccessTime()
	statOut.Modify = md.ModTime()
	statOut.Create = md.CreationTime()

	return statOut, nil

}
