package ext4

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestSuperblockStruct(t *testing.T) {

	superblock := &Superblock{}

	// check that the struct is the correct size
	size := binary.Size(superblock)
	if size != SuperblockSize {
		t.Errorf("struct Superblock is the wrong size -- expect %d but got %d", SuperblockSize, size)
	}

	// check that a couple of the fields are at the correct offsets
	var offset int

	offset = offsetOf(superblock, &superblock.Signature)
	if offset != 0x38 {
		t.Errorf("struct Superblock has been corrupted (a field is offset incorrectly)")
	}

	offset = offsetOf(superblock, &superblock.FeatureIncompat)
	if offset != 0x60 {
		t.Errorf("struct Superblock has been corrupted (a field is offset incorrectly)")
	}

	offset = offsetOf(superblock, &superblock.DefaultMountOpts)
	if offset != 0x100 {
		t.Errorf("struct Superblock has been corrupted (a field is offset incorrectly)")
	}

	offset = offsetOf(superblock, &superblock.MountOptions)
	if offset != 0x200 {
		t.Errorf("struct Superblock has been corrupted (a field is offset incorrectly)")
	}

	offset = offsetOf(superblock, &superblock.ChecksumSeed)
	if offset != 0x270 {
		t.Errorf("struct Superblock has been corrupted (a field is offset incorrectly)")
	}

	offset = offsetOf(superblock, &superblock.Checksum)
	if offset != 0x3FC {
		t.Errorf("struct Superblock has been corrupted (a field is offset incorrectly)")
	}

}

func TestLoadRejectsBadMagic(t *testing.T) {

	img := buildTestImage()
	img.sb.Signature = 0x1234

	_, err := Load(&LoadArgs{Source: img.finish()})
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic but got %v", err)
	}

}

func TestLoadRejectsBadBlockSize(t *testing.T) {

	img := buildTestImage()
	img.sb.LogBlockSize = 9

	_, err := Load(&LoadArgs{Source: img.finish()})
	if !errors.Is(err, ErrUnsupportedBlockSize) {
		t.Errorf("expected ErrUnsupportedBlockSize but got %v", err)
	}

}

func TestLoadRejectsUnknownIncompatFeature(t *testing.T) {

	img := buildTestImage()
	img.sb.FeatureIncompat |= IncompatEncrypt

	_, err := Load(&LoadArgs{Source: img.finish()})
	if !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("expected ErrUnsupportedFeature but got %v", err)
	}

}

func TestLoadToleratesUnknownCompatFeatures(t *testing.T) {

	img := buildTestImage()
	img.sb.FeatureCompat |= 0x80000000
	img.sb.FeatureROCompat |= ROCompatQuota

	_, err := Load(&LoadArgs{Source: img.finish()})
	if err != nil {
		t.Errorf("compat and ro_compat features should never block a read-only load: %v", err)
	}

}

func TestSuperblockAccessors(t *testing.T) {

	fs := loadTestFS(t, false)
	sb := fs.Superblock()

	if sb.BlockSize() != testBlockSize {
		t.Errorf("wrong block size -- expect %d but got %d", testBlockSize, sb.BlockSize())
	}

	if sb.TotalBlocks() != testTotalBlocks {
		t.Errorf("wrong total blocks -- expect %d but got %d", testTotalBlocks, sb.TotalBlocks())
	}

	if sb.GroupCount() != 1 {
		t.Errorf("wrong group count -- expect 1 but got %d", sb.GroupCount())
	}

	if sb.InodeRecordSize() != testInodeSize {
		t.Errorf("wrong inode record size -- expect %d but got %d", testInodeSize, sb.InodeRecordSize())
	}

	if sb.DescriptorSize() != MinDescriptorSize {
		t.Errorf("wrong descriptor size -- expect %d but got %d", MinDescriptorSize, sb.DescriptorSize())
	}

	if fs.Label() != "testvol" {
		t.Errorf("wrong volume label -- expect 'testvol' but got '%s'", fs.Label())
	}

	if sb.VolumeUUID().String() != "01020304-0506-0708-090a-0b0c0d0e0f10" {
		t.Errorf("wrong volume UUID: %s", sb.VolumeUUID())
	}

}

func TestGroupHasSuperblockCopy(t *testing.T) {

	sb := &Superblock{FeatureROCompat: ROCompatSparseSuper}

	for _, g := range []int64{0, 1, 3, 5, 7, 9, 25, 27, 49} {
		if !sb.groupHasSuperblockCopy(g) {
			t.Errorf("group %d should hold a superblock backup", g)
		}
	}

	for _, g := range []int64{2, 4, 6, 8, 10, 15, 21, 50} {
		if sb.groupHasSuperblockCopy(g) {
			t.Errorf("group %d should not hold a superblock backup", g)
		}
	}

	sb.FeatureROCompat = 0
	if !sb.groupHasSuperblockCopy(50) {
		t.Errorf("every group holds a backup without sparse_super")
	}

}
