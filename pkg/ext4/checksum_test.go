package ext4

import (
	"testing"
)

func TestCrc32c(t *testing.T) {

	// standard CRC-32C check value for "123456789" is 0xE3069283; without
	// the final inversion that is 0x1CF96D7C
	crc := crc32c(^uint32(0), []byte("123456789"))
	if crc != 0x1CF96D7C {
		t.Errorf("crc32c is broken -- expect 0x1CF96D7C but got %#x", crc)
	}

	// chunked updates must match a single pass
	crc = crc32c(^uint32(0), []byte("12345"))
	crc = crc32c(crc, []byte("6789"))
	if crc != 0x1CF96D7C {
		t.Errorf("chunked crc32c diverges from a single pass -- got %#x", crc)
	}

}

func TestChecksumSeed(t *testing.T) {

	sb := &Superblock{}
	for i := range sb.UUID {
		sb.UUID[i] = byte(i + 1)
	}

	derived := sb.checksumSeed()
	if derived != crc32c(^uint32(0), sb.UUID[:]) {
		t.Errorf("checksum seed should be derived from the UUID")
	}

	sb.FeatureIncompat |= IncompatCsumSeed
	sb.ChecksumSeed = 0xDEADBEEF
	if sb.checksumSeed() != 0xDEADBEEF {
		t.Errorf("csum_seed file-systems carry their seed in the superblock")
	}

}

func TestDescriptorChecksumGDT(t *testing.T) {

	img := buildTestImage()
	fs := loadTestFS(t, true)

	desc := fs.groups[0]
	expected := descriptorChecksum(img.sb, 0, desc)
	if desc.Checksum != expected {
		t.Errorf("fixture descriptor checksum mismatch -- expect %#x but got %#x", expected, desc.Checksum)
	}

	if warnings := fs.VerifyDescriptors(); len(warnings) != 0 {
		t.Errorf("expected no checksum warnings but got %v", warnings)
	}

	// flipping a field must change the checksum
	mangled := *desc
	mangled.FreeBlocksLo ^= 0xFFFF
	if descriptorChecksum(img.sb, 0, &mangled) == expected {
		t.Errorf("descriptor checksum ignored a field change")
	}

}

func TestVerifyDescriptorsReportsMismatch(t *testing.T) {

	fs := loadTestFS(t, false)
	fs.groups[0].Checksum ^= 0xFF

	warnings := fs.VerifyDescriptors()
	if len(warnings) != 1 {
		t.Fatalf("expected one checksum warning but got %d", len(warnings))
	}

	cerr, ok := warnings[0].(*ChecksumError)
	if !ok {
		t.Fatalf("expected a ChecksumError but got %T", warnings[0])
	}

	if cerr.Expected == cerr.Actual {
		t.Errorf("checksum error reports no difference")
	}

}

func TestDescriptorChecksumMetadataCsum(t *testing.T) {

	sb := &Superblock{
		FeatureROCompat: ROCompatMetadataCsum,
	}
	for i := range sb.UUID {
		sb.UUID[i] = byte(i * 3)
	}

	desc := &BlockGroupDescriptor{
		BlockBitmapLo: 3,
		InodeBitmapLo: 4,
		InodeTableLo:  5,
	}

	a := descriptorChecksum(sb, 0, desc)
	b := descriptorChecksum(sb, 1, desc)
	if a == b {
		t.Errorf("metadata_csum descriptor checksum ignores the group number")
	}

	// the checksum field itself must not feed into the calculation
	desc.Checksum = a
	if descriptorChecksum(sb, 0, desc) != a {
		t.Errorf("descriptor checksum must exclude its own field")
	}

}

func TestDirentBlockChecksum(t *testing.T) {

	sb := &Superblock{}
	for i := range sb.UUID {
		sb.UUID[i] = byte(i + 1)
	}

	data := []byte("some directory entries")

	a := direntBlockChecksum(sb, 2, 0, data)
	b := direntBlockChecksum(sb, 3, 0, data)
	if a == b {
		t.Errorf("dirent block checksum ignores the inode number")
	}

	c := direntBlockChecksum(sb, 2, 1, data)
	if a == c {
		t.Errorf("dirent block checksum ignores the generation")
	}

}
