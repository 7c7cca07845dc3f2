package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	ExtentMagic        = 0xF30A
	ExtentHeaderSize   = 12
	ExtentEntrySize    = 12
	ExtentUnwrittenLen = 32768
	MaxExtentDepth     = 5
)

const (
	DirectPointers     = 12
	SingleIndirectSlot = 12
	DoubleIndirectSlot = 13
	TripleIndirectSlot = 14
)

type ExtentHeader struct {
	Magic      uint16
	Entries    uint16
	Max        uint16
	Depth      uint16
	Generation uint32
} // 0xC

type ExtentIndex struct {
	Block  uint32
	LeafLo uint32
	LeafHi uint16
	_      uint16
} // 0xC

type Extent struct {
	Block   uint32
	Len     uint16
	StartHi uint16
	StartLo uint32
} // 0xC

// StartBlock returns the physical address of the extent's first block.
func (e *Extent) StartBlock() uint64 {
	return uint64(e.StartLo) | uint64(e.StartHi)<<32
}

// Unwritten reports whether the extent is allocated but not yet initialized.
// Reads from an unwritten extent must produce zeroes.
func (e *Extent) Unwritten() bool {
	return e.Len > ExtentUnwrittenLen
}

// Length returns the number of blocks the extent covers. The raw length field
// of an unwritten extent is offset by 32768.
func (e *Extent) Length() int64 {
	if e.Unwritten() {
		return int64(e.Len) - ExtentUnwrittenLen
	}
	return int64(e.Len)
}

func (idx *ExtentIndex) Leaf() uint64 {
	return uint64(idx.LeafLo) | uint64(idx.LeafHi)<<32
}

// BlockMapping is the result of translating a logical block number within a
// file to a location on the disk. Holes and unwritten extents occupy no
// readable space: both read back as zeroes.
type BlockMapping struct {
	Block     uint64
	Hole      bool
	Unwritten bool
}

// MapBlock translates logical block number 'logical' of the given inode into
// a physical block address. It understands both extent trees and the legacy
// direct/indirect block map, chosen by the inode's extents flag.
func (fs *FileSystem) MapBlock(inode *Inode, logical int64) (*BlockMapping, error) {
	if inode.usesExtents() {
		return fs.mapExtents(inode, logical)
	}
	return fs.mapBlockMap(inode, logical)
}

func decodeExtentHeader(node []byte) (*ExtentHeader, error) {

	hdr := new(ExtentHeader)
	err := binary.Read(bytes.NewReader(node), binary.LittleEndian, hdr)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated node", ErrCorruptExtentTree)
	}

	if hdr.Magic != ExtentMagic {
		return nil, fmt.Errorf("%w: bad node magic %#04x", ErrCorruptExtentTree, hdr.Magic)
	}

	capacity := (len(node) - ExtentHeaderSize) / ExtentEntrySize
	if int(hdr.Max) > capacity || hdr.Entries > hdr.Max {
		return nil, fmt.Errorf("%w: node claims %d/%d entries but fits %d", ErrCorruptExtentTree, hdr.Entries, hdr.Max, capacity)
	}

	if hdr.Depth > MaxExtentDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrCorruptExtentTree, hdr.Depth)
	}

	return hdr, nil

}

func (fs *FileSystem) mapExtents(inode *Inode, logical int64) (*BlockMapping, error) {

	node := make([]byte, len(inode.Block))
	copy(node, inode.Block[:])
	depth := -1

	for {

		hdr, err := decodeExtentHeader(node)
		if err != nil {
			return nil, err
		}

		if depth == -1 {
			depth = int(hdr.Depth)
		} else if int(hdr.Depth) != depth {
			return nil, fmt.Errorf("%w: expected node depth %d but got %d", ErrCorruptExtentTree, depth, hdr.Depth)
		}

		entries := node[ExtentHeaderSize:]
		n := int(hdr.Entries)

		if depth == 0 {

			i := sort.Search(n, func(i int) bool {
				return binary.LittleEndian.Uint32(entries[i*ExtentEntrySize:]) > uint32(logical)
			})
			if i == 0 {
				return &BlockMapping{Hole: true}, nil
			}

			extent := new(Extent)
			r := bytes.NewReader(entries[(i-1)*ExtentEntrySize:])
			err = binary.Read(r, binary.LittleEndian, extent)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated leaf entry", ErrCorruptExtentTree)
			}

			delta := logical - int64(extent.Block)
			if delta >= extent.Length() {
				return &BlockMapping{Hole: true}, nil
			}

			return &BlockMapping{
				Block:     extent.StartBlock() + uint64(delta),
				Unwritten: extent.Unwritten(),
			}, nil

		}

		i := sort.Search(n, func(i int) bool {
			return binary.LittleEndian.Uint32(entries[i*ExtentEntrySize:]) > uint32(logical)
		})
		if i == 0 {
			return &BlockMapping{Hole: true}, nil
		}

		idx := new(ExtentIndex)
		r := bytes.NewReader(entries[(i-1)*ExtentEntrySize:])
		err = binary.Read(r, binary.LittleEndian, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated index entry", ErrCorruptExtentTree)
		}

		child := make([]byte, fs.super.BlockSize())
		_, err = fs.src.ReadAt(child, int64(idx.Leaf())*fs.super.BlockSize())
		if err != nil {
			return nil, ioErr(err, "reading extent tree node at block %d", idx.Leaf())
		}

		node = child
		depth--

	}

}

// mapBlockMap translates a logical block through the classic ext2 block map:
// twelve direct pointers followed by single, double, and triple indirect
// pointer blocks. A zero pointer at any level is a hole.
func (fs *FileSystem) mapBlockMap(inode *Inode, logical int64) (*BlockMapping, error) {

	bs := fs.super.BlockSize()
	ptrs := bs / 4

	slot := func(i int) uint32 {
		return binary.LittleEndian.Uint32(inode.Block[i*4:])
	}

	var root uint32
	var path []int64

	switch {
	case logical < DirectPointers:
		root = slot(int(logical))
	case logical < DirectPointers+ptrs:
		root = slot(SingleIndirectSlot)
		rel := logical - DirectPointers
		path = []int64{rel}
	case logical < DirectPointers+ptrs+ptrs*ptrs:
		root = slot(DoubleIndirectSlot)
		rel := logical - DirectPointers - ptrs
		path = []int64{rel / ptrs, rel % ptrs}
	case logical < DirectPointers+ptrs+ptrs*ptrs+ptrs*ptrs*ptrs:
		root = slot(TripleIndirectSlot)
		rel := logical - DirectPointers - ptrs - ptrs*ptrs
		path = []int64{rel / (ptrs * ptrs), (rel / ptrs) % ptrs, rel % ptrs}
	default:
		return &BlockMapping{Hole: true}, nil
	}

	blk := root
	buf := make([]byte, 4)

	for _, idx := range path {
		if blk == 0 {
			return &BlockMapping{Hole: true}, nil
		}
		_, err := fs.src.ReadAt(buf, int64(blk)*bs+idx*4)
		if err != nil {
			return nil, ioErr(err, "reading indirect block %d", blk)
		}
		blk = binary.LittleEndian.Uint32(buf)
	}

	if blk == 0 {
		return &BlockMapping{Hole: true}, nil
	}

	return &BlockMapping{Block: uint64(blk)}, nil

}
