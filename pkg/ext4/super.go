package ext4

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	Signature        = 0xEF53
	SuperblockOffset = 1024
	SuperblockSize   = 1024
	RootDirInode     = 2
	JournalInode     = 8

	MinBlockSize      = 1024
	MaxBlockSize      = 65536
	OldInodeSize      = 128
	MinDescriptorSize = 32
	MaxSymlinkDepth   = 40
)

const (
	CompatDirPrealloc  = 0x1   // COMPAT_DIR_PREALLOC
	CompatImagicInodes = 0x2   // COMPAT_IMAGIC_INODES
	CompatHasJournal   = 0x4   // COMPAT_HAS_JOURNAL
	CompatExtAttr      = 0x8   // COMPAT_EXT_ATTR
	CompatResizeInode  = 0x10  // COMPAT_RESIZE_INODE
	CompatDirIndex     = 0x20  // COMPAT_DIR_INDEX
	CompatSparseSuper2 = 0x200 // COMPAT_SPARSE_SUPER2
)

const (
	IncompatCompression = 0x1     // INCOMPAT_COMPRESSION
	IncompatFiletype    = 0x2     // INCOMPAT_FILETYPE
	IncompatRecover     = 0x4     // INCOMPAT_RECOVER
	IncompatJournalDev  = 0x8     // INCOMPAT_JOURNAL_DEV
	IncompatMetaBG      = 0x10    // INCOMPAT_META_BG
	IncompatExtents     = 0x40    // INCOMPAT_EXTENTS
	Incompat64Bit       = 0x80    // INCOMPAT_64BIT
	IncompatMMP         = 0x100   // INCOMPAT_MMP
	IncompatFlexBG      = 0x200   // INCOMPAT_FLEX_BG
	IncompatEAInode     = 0x400   // INCOMPAT_EA_INODE
	IncompatDirData     = 0x1000  // INCOMPAT_DIRDATA
	IncompatCsumSeed    = 0x2000  // INCOMPAT_CSUM_SEED
	IncompatLargeDir    = 0x4000  // INCOMPAT_LARGEDIR
	IncompatInlineData  = 0x8000  // INCOMPAT_INLINE_DATA
	IncompatEncrypt     = 0x10000 // INCOMPAT_ENCRYPT
)

const (
	ROCompatSparseSuper  = 0x1    // RO_COMPAT_SPARSE_SUPER
	ROCompatLargeFile    = 0x2    // RO_COMPAT_LARGE_FILE
	ROCompatBtreeDir     = 0x4    // RO_COMPAT_BTREE_DIR
	ROCompatHugeFile     = 0x8    // RO_COMPAT_HUGE_FILE
	ROCompatGDTCsum      = 0x10   // RO_COMPAT_GDT_CSUM
	ROCompatDirNlink     = 0x20   // RO_COMPAT_DIR_NLINK
	ROCompatExtraIsize   = 0x40   // RO_COMPAT_EXTRA_ISIZE
	ROCompatQuota        = 0x100  // RO_COMPAT_QUOTA
	ROCompatBigalloc     = 0x200  // RO_COMPAT_BIGALLOC
	ROCompatMetadataCsum = 0x400  // RO_COMPAT_METADATA_CSUM
	ROCompatReadonly     = 0x1000 // RO_COMPAT_READONLY
	ROCompatProject      = 0x2000 // RO_COMPAT_PROJECT
)

// IncompatSupported is every incompatible feature this package knows how to
// read. A superblock advertising anything outside of this set cannot be
// decoded safely.
const IncompatSupported = IncompatFiletype | IncompatMetaBG | IncompatExtents |
	Incompat64Bit | IncompatFlexBG | IncompatCsumSeed

// Superblock is the structure of a superblock as written to the disk.
type Superblock struct {
	TotalInodes       uint32
	TotalBlocksLo     uint32
	ReservedBlocksLo  uint32
	FreeBlocksLo      uint32
	FreeInodes        uint32 // 0x10
	FirstDataBlock    uint32
	LogBlockSize      uint32
	LogClusterSize    uint32
	BlocksPerGroup    uint32 // 0x20
	ClustersPerGroup  uint32
	InodesPerGroup    uint32
	LastMountTime     uint32
	LastWrittenTime   uint32 // 0x30
	MountCount        uint16
	MaxMountCount     uint16
	Signature         uint16
	State             uint16
	ErrorProtocol     uint16
	VersionMinor      uint16
	TimeLastCheck     uint32 // 0x40
	TimeCheckInterval uint32
	CreatorOS         uint32
	VersionMajor      uint32
	ResUID            uint16 // 0x50
	ResGID            uint16
	FirstIno          uint32
	InodeSize         uint16
	BlockGroupNumber  uint16
	FeatureCompat     uint32
	FeatureIncompat   uint32 // 0x60
	FeatureROCompat   uint32
	UUID              [16]byte
	VolumeName        [16]byte
	LastMounted       [64]byte // 0x88
	AlgoUsageBitmap   uint32
	PreallocBlocks    uint8
	PreallocDirBlocks uint8
	ReservedGDTBlocks uint16
	JournalUUID       [16]byte // 0xD0
	JournalInum       uint32   // 0xE0
	JournalDev        uint32
	LastOrphan        uint32
	HashSeed          [4]uint32 // 0xEC
	DefHashVersion    uint8     // 0xFC
	JnlBackupType     uint8
	DescSize          uint16
	DefaultMountOpts  uint32 // 0x100
	FirstMetaBG       uint32
	MkfsTime          uint32
	JnlBlocks         [17]uint32 // 0x10C
	TotalBlocksHi     uint32     // 0x150
	ReservedBlocksHi  uint32
	FreeBlocksHi      uint32
	MinExtraIsize     uint16
	WantExtraIsize    uint16
	Flags             uint32 // 0x160
	RaidStride        uint16
	MMPInterval       uint16
	MMPBlock          uint64
	RaidStripeWidth   uint32 // 0x170
	LogGroupsPerFlex  uint8
	ChecksumType      uint8
	_                 uint16
	KBytesWritten     uint64 // 0x178
	SnapshotInum      uint32 // 0x180
	SnapshotID        uint32
	SnapshotRBlocks   uint64
	SnapshotList      uint32 // 0x190
	ErrorCount        uint32
	FirstErrorTime    uint32
	FirstErrorIno     uint32
	FirstErrorBlock   uint64    // 0x1A0
	FirstErrorFunc    [32]uint8 // 0x1A8
	FirstErrorLine    uint32    // 0x1C8
	LastErrorTime     uint32
	LastErrorIno      uint32 // 0x1D0
	LastErrorLine     uint32
	LastErrorBlock    uint64
	LastErrorFunc     [32]uint8 // 0x1E0
	MountOptions      [64]uint8 // 0x200
	UserQuotaInum     uint32    // 0x240
	GroupQuotaInum    uint32
	OverheadBlocks    uint32
	BackupBGs         [2]uint32 // 0x24C
	EncryptAlgos      [4]uint8  // 0x254
	EncryptPWSalt     [16]uint8 // 0x258
	LostFoundInum     uint32    // 0x268
	ProjectQuotaInum  uint32
	ChecksumSeed      uint32 // 0x270
	WtimeHi           uint8
	MtimeHi           uint8
	MkfsTimeHi        uint8
	LastCheckHi       uint8
	FirstErrorTimeHi  uint8
	LastErrorTimeHi   uint8
	_                 [2]uint8
	EncodingNum       uint16
	EncodingFlags     uint16
	_                 [95]uint32 // 0x280
	Checksum          uint32     // 0x3FC
} // 0x400

func (sb *Superblock) HasCompat(flag uint32) bool {
	return sb.FeatureCompat&flag != 0
}

func (sb *Superblock) HasIncompat(flag uint32) bool {
	return sb.FeatureIncompat&flag != 0
}

func (sb *Superblock) HasROCompat(flag uint32) bool {
	return sb.FeatureROCompat&flag != 0
}

// BlockSize returns the file-system block size in bytes.
func (sb *Superblock) BlockSize() int64 {
	return int64(MinBlockSize) << sb.LogBlockSize
}

// TotalBlocks returns the full 64-bit block count. The upper half of the
// counter is only meaningful on 64-bit file-systems.
func (sb *Superblock) TotalBlocks() uint64 {
	if sb.HasIncompat(Incompat64Bit) {
		return combine(sb.TotalBlocksLo, sb.TotalBlocksHi)
	}
	return uint64(sb.TotalBlocksLo)
}

func (sb *Superblock) FreeBlocks() uint64 {
	if sb.HasIncompat(Incompat64Bit) {
		return combine(sb.FreeBlocksLo, sb.FreeBlocksHi)
	}
	return uint64(sb.FreeBlocksLo)
}

// InodeRecordSize returns the on-disk size of one inode table slot. Revision
// zero file-systems predate the s_inode_size field and always use 128 bytes.
func (sb *Superblock) InodeRecordSize() int64 {
	if sb.VersionMajor == 0 {
		return OldInodeSize
	}
	return int64(sb.InodeSize)
}

// DescriptorSize returns the size of one block group descriptor. Descriptors
// only grow beyond 32 bytes on 64-bit file-systems.
func (sb *Superblock) DescriptorSize() int64 {
	if sb.HasIncompat(Incompat64Bit) && sb.DescSize >= 64 {
		return int64(sb.DescSize)
	}
	return MinDescriptorSize
}

// GroupCount returns the number of block groups. The first data block offsets
// the whole layout, which matters on 1 KiB block file-systems.
func (sb *Superblock) GroupCount() int64 {
	blocks := int64(sb.TotalBlocks()) - int64(sb.FirstDataBlock)
	return divide(blocks, int64(sb.BlocksPerGroup))
}

func (sb *Superblock) descriptorsPerBlock() int64 {
	return sb.BlockSize() / sb.DescriptorSize()
}

// VolumeLabel returns the volume name with any trailing NUL padding removed.
func (sb *Superblock) VolumeLabel() string {
	return cstring(sb.VolumeName[:])
}

func (sb *Superblock) VolumeUUID() uuid.UUID {
	return uuid.Must(uuid.FromBytes(sb.UUID[:]))
}

// groupHasSuperblockCopy reports whether a block group holds a backup copy of
// the superblock and group descriptor table. Without the sparse_super feature
// every group has one; with it only groups 0, 1, and powers of 3, 5, and 7.
func (sb *Superblock) groupHasSuperblockCopy(g int64) bool {
	if !sb.HasROCompat(ROCompatSparseSuper) {
		return true
	}
	if g == 0 || g == 1 {
		return true
	}
	return isPowerOf(g, 3) || isPowerOf(g, 5) || isPowerOf(g, 7)
}

func loadSuperblock(src io.ReaderAt) (*Superblock, error) {

	sb := new(Superblock)
	r := io.NewSectionReader(src, SuperblockOffset, SuperblockSize)
	err := binary.Read(r, binary.LittleEndian, sb)
	if err != nil {
		return nil, ioErr(err, "reading superblock")
	}

	if sb.Signature != Signature {
		return nil, fmt.Errorf("%w: %#04x", ErrInvalidMagic, sb.Signature)
	}

	if sb.BlockSize() < MinBlockSize || sb.BlockSize() > MaxBlockSize {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBlockSize, sb.BlockSize())
	}

	if unsupported := sb.FeatureIncompat &^ IncompatSupported; unsupported != 0 {
		return nil, fmt.Errorf("%w: incompat flags %#x", ErrUnsupportedFeature, unsupported)
	}

	if sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0 {
		return nil, fmt.Errorf("%w: zeroed group geometry", ErrInvalidMagic)
	}

	if sb.InodeRecordSize() < OldInodeSize || sb.InodeRecordSize() > sb.BlockSize() {
		return nil, fmt.Errorf("%w: inode record size %d", ErrUnsupportedFeature, sb.InodeRecordSize())
	}

	return sb, nil

}
