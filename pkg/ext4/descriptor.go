package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// BlockGroupDescriptor is the structure of a single block group descriptor as
// written to the disk. Only the first 32 bytes exist on file-systems without
// the 64bit feature.
type BlockGroupDescriptor struct {
	BlockBitmapLo     uint32 // 0x0
	InodeBitmapLo     uint32 // 0x4
	InodeTableLo      uint32 // 0x8
	FreeBlocksLo      uint16 // 0xC
	FreeInodesLo      uint16 // 0xE
	DirectoriesLo     uint16 // 0x10
	Flags             uint16 // 0x12
	ExcludeBitmapLo   uint32 // 0x14
	BlockBitmapCsumLo uint16 // 0x18
	InodeBitmapCsumLo uint16 // 0x1A
	UnusedInodesLo    uint16 // 0x1C
	Checksum          uint16 // 0x1E
	BlockBitmapHi     uint32 // 0x20
	InodeBitmapHi     uint32 // 0x24
	InodeTableHi      uint32 // 0x28
	FreeBlocksHi      uint16 // 0x2C
	FreeInodesHi      uint16 // 0x2E
	DirectoriesHi     uint16 // 0x30
	UnusedInodesHi    uint16 // 0x32
	ExcludeBitmapHi   uint32 // 0x34
	BlockBitmapCsumHi uint16 // 0x38
	InodeBitmapCsumHi uint16 // 0x3A
	_                 uint32 // 0x3C
} // 0x40

func (sb *Superblock) wideDescriptors() bool {
	return sb.HasIncompat(Incompat64Bit) && sb.DescSize >= 64
}

func (d *BlockGroupDescriptor) BlockBitmap(sb *Superblock) uint64 {
	if sb.wideDescriptors() {
		return combine(d.BlockBitmapLo, d.BlockBitmapHi)
	}
	return uint64(d.BlockBitmapLo)
}

func (d *BlockGroupDescriptor) InodeBitmap(sb *Superblock) uint64 {
	if sb.wideDescriptors() {
		return combine(d.InodeBitmapLo, d.InodeBitmapHi)
	}
	return uint64(d.InodeBitmapLo)
}

// InodeTable returns the block address of the first block of the group's
// inode table.
func (d *BlockGroupDescriptor) InodeTable(sb *Superblock) uint64 {
	if sb.wideDescriptors() {
		return combine(d.InodeTableLo, d.InodeTableHi)
	}
	return uint64(d.InodeTableLo)
}

func (d *BlockGroupDescriptor) FreeBlocks(sb *Superblock) uint32 {
	if sb.wideDescriptors() {
		return uint32(d.FreeBlocksLo) | uint32(d.FreeBlocksHi)<<16
	}
	return uint32(d.FreeBlocksLo)
}

func (d *BlockGroupDescriptor) FreeInodes(sb *Superblock) uint32 {
	if sb.wideDescriptors() {
		return uint32(d.FreeInodesLo) | uint32(d.FreeInodesHi)<<16
	}
	return uint32(d.FreeInodesLo)
}

func (d *BlockGroupDescriptor) Directories(sb *Superblock) uint32 {
	if sb.wideDescriptors() {
		return uint32(d.DirectoriesLo) | uint32(d.DirectoriesHi)<<16
	}
	return uint32(d.DirectoriesLo)
}

// descriptorLocation returns the block address holding group g's descriptor
// and the byte offset of the descriptor within that block. Groups covered by
// the meta_bg feature keep their descriptors at the front of their own meta
// group instead of in the table that follows the primary superblock.
func descriptorLocation(sb *Superblock, g int64) (uint64, int64) {

	dpb := sb.descriptorsPerBlock()
	offset := (g % dpb) * sb.DescriptorSize()

	if !sb.HasIncompat(IncompatMetaBG) || g < int64(sb.FirstMetaBG)*dpb {
		blk := uint64(sb.FirstDataBlock) + 1 + uint64(g/dpb)
		return blk, offset
	}

	firstGroup := (g / dpb) * dpb
	blk := uint64(sb.FirstDataBlock) + uint64(firstGroup)*uint64(sb.BlocksPerGroup)
	if sb.groupHasSuperblockCopy(firstGroup) {
		blk++
	}
	return blk, offset

}

func loadDescriptors(src io.ReaderAt, sb *Superblock) ([]*BlockGroupDescriptor, error) {

	size := sb.DescriptorSize()
	groups := sb.GroupCount()
	descriptors := make([]*BlockGroupDescriptor, 0, groups)

	buf := make([]byte, binary.Size(&BlockGroupDescriptor{}))

	for g := int64(0); g < groups; g++ {

		blk, offset := descriptorLocation(sb, g)
		addr := int64(blk)*sb.BlockSize() + offset

		for i := range buf {
			buf[i] = 0
		}

		_, err := src.ReadAt(buf[:size], addr)
		if err != nil {
			return nil, ioErr(err, "reading descriptor for block group %d", g)
		}

		desc := new(BlockGroupDescriptor)
		err = binary.Read(bytes.NewReader(buf), binary.LittleEndian, desc)
		if err != nil {
			return nil, ioErr(err, "decoding descriptor for block group %d", g)
		}

		descriptors = append(descriptors, desc)

	}

	return descriptors, nil

}

// VerifyDescriptors recomputes the checksum of every block group descriptor
// and returns one ChecksumError per mismatch. File-systems carrying neither
// the gdt_csum nor the metadata_csum feature have nothing to verify.
func (fs *FileSystem) VerifyDescriptors() []error {

	sb := fs.super
	if !sb.HasROCompat(ROCompatGDTCsum) && !sb.HasROCompat(ROCompatMetadataCsum) {
		return nil
	}

	var mismatches []error

	for g, desc := range fs.groups {
		expected := descriptorChecksum(sb, uint32(g), desc)
		if desc.Checksum != expected {
			mismatches = append(mismatches, &ChecksumError{
				Item:     fmt.Sprintf("block group descriptor %d", g),
				Expected: uint32(expected),
				Actual:   uint32(desc.Checksum),
			})
		}
	}

	return mismatches

}
