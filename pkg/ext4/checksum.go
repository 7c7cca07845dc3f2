package ext4

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/howeyc/crc16"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32c computes the checksum the way the kernel's ext4 code does, without
// the customary initial and final bit inversions.
func crc32c(crc uint32, p []byte) uint32 {
	return ^crc32.Update(^crc, crc32cTable, p)
}

func structBytes(v interface{}) []byte {
	buf := new(bytes.Buffer)
	err := binary.Write(buf, binary.LittleEndian, v)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// checksumSeed returns the starting value for every metadata checksum on the
// file-system. It is usually derived from the volume UUID, but images with
// the csum_seed feature store a precomputed seed so the UUID can change
// without rewriting all metadata.
func (sb *Superblock) checksumSeed() uint32 {
	if sb.HasIncompat(IncompatCsumSeed) {
		return sb.ChecksumSeed
	}
	return crc32c(^uint32(0), sb.UUID[:])
}

func superblockChecksum(sb *Superblock) uint32 {
	data := structBytes(sb)
	return crc32c(^uint32(0), data[:SuperblockSize-4])
}

// descriptorChecksum computes the expected checksum of one block group
// descriptor. The formula differs between the old gdt_csum scheme (crc16 over
// UUID, group number, and descriptor) and metadata_csum (crc32c from the
// file-system seed, truncated to 16 bits).
func descriptorChecksum(sb *Superblock, group uint32, desc *BlockGroupDescriptor) uint16 {

	size := sb.DescriptorSize()
	data := structBytes(desc)[:size]

	le := make([]byte, 4)
	binary.LittleEndian.PutUint32(le, group)

	if sb.HasROCompat(ROCompatMetadataCsum) {
		crc := crc32c(sb.checksumSeed(), le)
		crc = crc32c(crc, data[:0x1E])
		crc = crc32c(crc, []byte{0, 0})
		if size > MinDescriptorSize {
			crc = crc32c(crc, data[0x20:])
		}
		return uint16(crc & 0xFFFF)
	}

	crc := crc16.Update(0xFFFF, crc16.IBMTable, sb.UUID[:])
	crc = crc16.Update(crc, crc16.IBMTable, le)
	crc = crc16.Update(crc, crc16.IBMTable, data[:0x1E])
	if size > MinDescriptorSize {
		crc = crc16.Update(crc, crc16.IBMTable, data[0x20:])
	}
	return crc

}

// direntBlockChecksum computes the expected checksum of a directory block,
// excluding the tail entry that stores it. The owning inode number and
// generation are mixed in so blocks cannot be swapped between files.
func direntBlockChecksum(sb *Superblock, ino, generation uint32, data []byte) uint32 {
	le := make([]byte, 8)
	binary.LittleEndian.PutUint32(le[0:], ino)
	binary.LittleEndian.PutUint32(le[4:], generation)
	crc := crc32c(sb.checksumSeed(), le)
	return crc32c(crc, data)
}
