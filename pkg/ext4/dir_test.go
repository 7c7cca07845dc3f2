package ext4

import (
	"encoding/binary"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
)

func testHashSuperblock(version uint8) *Superblock {
	return &Superblock{
		DefHashVersion: version,
		Flags:          FlagsUnsignedHash,
	}
}

func TestDentryHashTea(t *testing.T) {

	// These are checks against known constants.
	sb := testHashSuperblock(HashVersionTea)

	expect := map[string]uint32{
		"":                      0x67452300,
		".":                     0x31FD669C,
		"..":                    0xBC44B5BE,
		"vorteil":               0x1D76D232,
		strings.Repeat("v", 48): 0x25FC974A,
	}

	for name, hash := range expect {
		got, ok := dentryHash(sb, sb.DefHashVersion, name)
		if !ok {
			t.Fatalf("tea should be a supported hash version")
		}
		if got != hash {
			t.Errorf("the tiny encryption algorithm has been broken -- hash of '%s' is %#x not %#x", name, got, hash)
		}
	}

}

func TestDentryHashProperties(t *testing.T) {

	for _, version := range []uint8{HashVersionLegacy, HashVersionHalfMD4, HashVersionTea} {

		sb := testHashSuperblock(version)

		a, ok := dentryHash(sb, sb.DefHashVersion, "hello.txt")
		if !ok {
			t.Fatalf("hash version %d should be supported", version)
		}

		b, _ := dentryHash(sb, sb.DefHashVersion, "hello.txt")
		if a != b {
			t.Errorf("hash version %d is not deterministic", version)
		}

		if a&0x1 != 0 {
			t.Errorf("hash version %d produced an odd hash", version)
		}

		c, _ := dentryHash(sb, sb.DefHashVersion, "other.txt")
		if a == c {
			t.Errorf("hash version %d hashed different names identically (unlucky collision?)", version)
		}

	}

	sb := testHashSuperblock(99)
	_, ok := dentryHash(sb, sb.DefHashVersion, "hello.txt")
	if ok {
		t.Errorf("unknown hash versions must be reported as unsupported")
	}

}

func TestDentryHashSeed(t *testing.T) {

	sb := testHashSuperblock(HashVersionTea)
	unseeded, _ := dentryHash(sb, sb.DefHashVersion, "hello.txt")

	sb.HashSeed = [4]uint32{1, 2, 3, 4}
	seeded, _ := dentryHash(sb, sb.DefHashVersion, "hello.txt")

	if unseeded == seeded {
		t.Errorf("the hash seed has no effect")
	}

}

func TestReadDir(t *testing.T) {

	fs := loadTestFS(t, false)

	it, err := fs.ReadDir(RootDirInode)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	inos := make(map[string]uint32)

	for {
		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, entry.Name)
		inos[entry.Name] = entry.Ino
	}

	sort.Strings(names)
	expect := []string{".", "..", "abs", "deep.bin", "dir1", "hashed", "hello.txt", "legacy.bin", "link", "longlink", "loop", "sparse.bin"}

	if strings.Join(names, ",") != strings.Join(expect, ",") {
		t.Errorf("directory listing is wrong -- expect %v but got %v", expect, names)
	}

	if inos["hello.txt"] != testInoHello {
		t.Errorf("hello.txt has the wrong inode number")
	}

	if inos["."] != RootDirInode || inos[".."] != RootDirInode {
		t.Errorf("the root directory's dot entries should refer back to it")
	}

}

func TestReadDirSubdirectory(t *testing.T) {

	fs := loadTestFS(t, false)

	it, err := fs.ReadDir(testInoDir1)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for {
		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, entry.Name)
	}

	sort.Strings(names)
	if strings.Join(names, ",") != ".,..,nested.txt" {
		t.Errorf("subdirectory listing is wrong: %v", names)
	}

}

func TestReadDirRejectsNonDirectories(t *testing.T) {

	fs := loadTestFS(t, false)

	_, err := fs.ReadDir(testInoHello)
	if !errors.Is(err, ErrNotADirectory) {
		t.Errorf("expected ErrNotADirectory but got %v", err)
	}

}

func TestReadDirReset(t *testing.T) {

	fs := loadTestFS(t, false)

	it, err := fs.ReadDir(testInoDir1)
	if err != nil {
		t.Fatal(err)
	}

	first, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}

	for {
		_, err = it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	it.Reset()

	again, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}

	if first.Name != again.Name || first.Ino != again.Ino {
		t.Errorf("Reset doesn't rewind the iterator")
	}

}

func TestReadDirTailChecksum(t *testing.T) {

	// the fixture's root directory block carries a valid checksum tail
	fs := loadTestFS(t, true)

	it, err := fs.ReadDir(RootDirInode)
	if err != nil {
		t.Fatal(err)
	}

	for {
		_, err = it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	if len(it.Warnings()) != 0 {
		t.Errorf("expected no warnings but got %v", it.Warnings())
	}

}

func TestReadDirTailChecksumMismatch(t *testing.T) {

	img := buildTestImage()

	// corrupt the stored tail checksum of the root directory block
	addr := 13*testBlockSize + testBlockSize - 4
	img.data[addr] ^= 0xFF

	fs, err := Load(&LoadArgs{Source: img.finish(), VerifyChecksums: true})
	if err != nil {
		t.Fatal(err)
	}

	it, err := fs.ReadDir(RootDirInode)
	if err != nil {
		t.Fatal(err)
	}

	for {
		_, err = it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	warnings := it.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("expected one warning but got %d", len(warnings))
	}

	if _, ok := warnings[0].(*ChecksumError); !ok {
		t.Errorf("expected a ChecksumError but got %T", warnings[0])
	}

}

func TestReadDirCorruptRecordLength(t *testing.T) {

	img := buildTestImage()

	// give the first entry of dir1's block an unaligned record length
	addr := 15*testBlockSize + 4
	binary.LittleEndian.PutUint16(img.data[addr:], 13)

	fs, err := Load(&LoadArgs{Source: img.finish()})
	if err != nil {
		t.Fatal(err)
	}

	it, err := fs.ReadDir(testInoDir1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = it.Next()
	if !errors.Is(err, ErrCorruptDirectoryEntry) {
		t.Errorf("expected ErrCorruptDirectoryEntry but got %v", err)
	}

}

func TestReadDirTruncatedTail(t *testing.T) {

	// a block whose final 8 bytes carry the tail signature, leaving no room
	// for the 4-byte checksum the tail is supposed to hold
	img := buildTestImage()

	block := make([]byte, testBlockSize)
	binary.LittleEndian.PutUint32(block[0:], testInoHello)
	binary.LittleEndian.PutUint16(block[4:], testBlockSize-direntHeaderSize)
	block[6] = uint8(len("hello.txt"))
	block[7] = FTypeRegularFile
	copy(block[8:], "hello.txt")

	addr := testBlockSize - direntHeaderSize
	binary.LittleEndian.PutUint32(block[addr:], 0)
	binary.LittleEndian.PutUint16(block[addr+4:], direntTailSize)
	block[addr+6] = 0
	block[addr+7] = DirentTailFType
	img.putBlock(13, block)

	fs, err := Load(&LoadArgs{Source: img.finish(), VerifyChecksums: true})
	if err != nil {
		t.Fatal(err)
	}

	it, err := fs.ReadDir(RootDirInode)
	if err != nil {
		t.Fatal(err)
	}

	entry, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if entry.Name != "hello.txt" {
		t.Errorf("expected hello.txt but got %q", entry.Name)
	}

	_, err = it.Next()
	if !errors.Is(err, ErrCorruptDirectoryEntry) {
		t.Errorf("expected ErrCorruptDirectoryEntry but got %v", err)
	}

}

func TestHtreeLookup(t *testing.T) {

	fs := loadTestFS(t, false)

	inode, err := fs.ResolveInode(testInoHashed)
	if err != nil {
		t.Fatal(err)
	}

	entry, err := fs.htreeLookup(testInoHashed, inode, "inside.txt")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("htree lookup missed an existing name")
	}

	if entry.Ino != testInoInside {
		t.Errorf("htree lookup found the wrong inode -- expect %d but got %d", testInoInside, entry.Ino)
	}

	entry, err = fs.htreeLookup(testInoHashed, inode, "missing.txt")
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Errorf("htree lookup hallucinated a missing name: %+v", entry)
	}

}

func TestLookupFallsBackOnUnsupportedHash(t *testing.T) {

	img := buildTestImage()
	img.data[20*testBlockSize+htreeRootInfoOffset+4] = 99

	fs, err := Load(&LoadArgs{Source: img.finish()})
	if err != nil {
		t.Fatal(err)
	}

	inode, err := fs.ResolveInode(testInoHashed)
	if err != nil {
		t.Fatal(err)
	}

	// the index is unusable, but a linear scan still works because htree
	// metadata hides inside unused directory entries
	entry, err := fs.lookup(testInoHashed, inode, "inside.txt")
	if err != nil {
		t.Fatal(err)
	}

	if entry.Ino != testInoInside {
		t.Errorf("fallback lookup found the wrong inode -- expect %d but got %d", testInoInside, entry.Ino)
	}

}

func TestHtreeLookupUsesIndexHashVersion(t *testing.T) {

	// the version recorded in the index root wins over the superblock default
	img := buildTestImage()
	img.sb.DefHashVersion = 99

	fs, err := Load(&LoadArgs{Source: img.finish()})
	if err != nil {
		t.Fatal(err)
	}

	inode, err := fs.ResolveInode(testInoHashed)
	if err != nil {
		t.Fatal(err)
	}

	entry, err := fs.htreeLookup(testInoHashed, inode, "inside.txt")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Ino != testInoInside {
		t.Errorf("htree lookup ignored the index root's hash version: %+v", entry)
	}

}

func TestLookupMissingName(t *testing.T) {

	fs := loadTestFS(t, false)

	inode, err := fs.ResolveInode(RootDirInode)
	if err != nil {
		t.Fatal(err)
	}

	_, err = fs.lookup(RootDirInode, inode, "no-such-file")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound but got %v", err)
	}

}
