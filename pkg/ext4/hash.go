package ext4

const (
	HashVersionLegacy          = 0x0
	HashVersionHalfMD4         = 0x1
	HashVersionTea             = 0x2
	HashVersionLegacyUnsigned  = 0x3
	HashVersionHalfMD4Unsigned = 0x4
	HashVersionTeaUnsigned     = 0x5
)

const (
	FlagsSignedHash   = 0x1 // EXT2_FLAGS_SIGNED_HASH
	FlagsUnsignedHash = 0x2 // EXT2_FLAGS_UNSIGNED_HASH
)

func rol32(x uint32, n uint) uint32 {
	return x<<n | x>>(32-n)
}

// sliceStringForHashing consumes up to num*4 bytes of s into the hash input
// buffer, padded with a value derived from the string length. The signedness
// of the byte expansion is a historical accident that became part of the
// on-disk format, so both variants survive.
func sliceStringForHashing(s string, in []uint32, signed bool) string {

	var pad, val uint32
	num := len(in)

	l := len(s)
	pad = uint32(l) | (uint32(l) << 8)
	pad |= pad << 16
	val = pad

	l = num * 4
	if len(s) < l {
		l = len(s)
	}

	var i, c int
	for i = 0; i < l; i++ {
		if signed {
			val = uint32(int32(int8(s[i]))) + (val << 8)
		} else {
			val = uint32(s[i]) + (val << 8)
		}
		if (i % 4) == 3 {
			in[c] = val
			c++
			val = pad
		}
	}

	if c < num {
		in[c] = val
		c++
	}

	for c < num {
		in[c] = pad
		c++
	}

	return s[l:]

}

func teaTransform(buf *[4]uint32, p []uint32) {

	var sum, b0, b1, a, b, c, d uint32
	b0 = buf[0]
	b1 = buf[1]
	a = p[0]
	b = p[1]
	c = p[2]
	d = p[3]

	for i := 0; i < 16; i++ {
		sum += 0x9E3779B9
		b0 += ((b1 << 4) + a) ^ (b1 + sum) ^ ((b1 >> 5) + b)
		b1 += ((b0 << 4) + c) ^ (b0 + sum) ^ ((b0 >> 5) + d)
	}

	buf[0] += b0
	buf[1] += b1

}

func teaHash(s string, buf *[4]uint32, signed bool) uint32 {

	var p [4]uint32
	for len(s) > 0 {
		s = sliceStringForHashing(s, p[:], signed)
		teaTransform(buf, p[:])
	}

	return buf[0]

}

func halfMD4F(x, y, z uint32) uint32 { return z ^ (x & (y ^ z)) }
func halfMD4G(x, y, z uint32) uint32 { return (x & y) + ((x ^ y) & z) }
func halfMD4H(x, y, z uint32) uint32 { return x ^ y ^ z }

func halfMD4Transform(buf *[4]uint32, in []uint32) {

	a := buf[0]
	b := buf[1]
	c := buf[2]
	d := buf[3]

	const k2 = 0x5A827999
	const k3 = 0x6ED9EBA1

	a = rol32(a+halfMD4F(b, c, d)+in[0], 3)
	d = rol32(d+halfMD4F(a, b, c)+in[1], 7)
	c = rol32(c+halfMD4F(d, a, b)+in[2], 11)
	b = rol32(b+halfMD4F(c, d, a)+in[3], 19)
	a = rol32(a+halfMD4F(b, c, d)+in[4], 3)
	d = rol32(d+halfMD4F(a, b, c)+in[5], 7)
	c = rol32(c+halfMD4F(d, a, b)+in[6], 11)
	b = rol32(b+halfMD4F(c, d, a)+in[7], 19)

	a = rol32(a+halfMD4G(b, c, d)+in[1]+k2, 3)
	d = rol32(d+halfMD4G(a, b, c)+in[3]+k2, 5)
	c = rol32(c+halfMD4G(d, a, b)+in[5]+k2, 9)
	b = rol32(b+halfMD4G(c, d, a)+in[7]+k2, 13)
	a = rol32(a+halfMD4G(b, c, d)+in[0]+k2, 3)
	d = rol32(d+halfMD4G(a, b, c)+in[2]+k2, 5)
	c = rol32(c+halfMD4G(d, a, b)+in[4]+k2, 9)
	b = rol32(b+halfMD4G(c, d, a)+in[6]+k2, 13)

	a = rol32(a+halfMD4H(b, c, d)+in[3]+k3, 3)
	d = rol32(d+halfMD4H(a, b, c)+in[7]+k3, 9)
	c = rol32(c+halfMD4H(d, a, b)+in[2]+k3, 11)
	b = rol32(b+halfMD4H(c, d, a)+in[6]+k3, 15)
	a = rol32(a+halfMD4H(b, c, d)+in[1]+k3, 3)
	d = rol32(d+halfMD4H(a, b, c)+in[5]+k3, 9)
	c = rol32(c+halfMD4H(d, a, b)+in[0]+k3, 11)
	b = rol32(b+halfMD4H(c, d, a)+in[4]+k3, 15)

	buf[0] += a
	buf[1] += b
	buf[2] += c
	buf[3] += d

}

func halfMD4Hash(s string, buf *[4]uint32, signed bool) uint32 {

	var p [8]uint32
	for len(s) > 0 {
		s = sliceStringForHashing(s, p[:], signed)
		halfMD4Transform(buf, p[:])
	}

	return buf[1]

}

func legacyHash(s string, signed bool) uint32 {

	hash0 := uint32(0x12a3fe2d)
	hash1 := uint32(0x37abe8f9)

	for i := 0; i < len(s); i++ {
		var c uint32
		if signed {
			c = uint32(int32(int8(s[i])))
		} else {
			c = uint32(s[i])
		}
		hash := hash1 + (hash0 ^ (c * 7152373))
		if hash&0x80000000 != 0 {
			hash -= 0x7fffffff
		}
		hash1 = hash0
		hash0 = hash
	}

	return hash0 << 1

}

// dentryHash computes the htree hash of a file name under the given hash
// version and the superblock's signedness flags and seed. The second return
// value is false when the version is one this package cannot reproduce, in
// which case the caller falls back to a linear directory scan.
func dentryHash(sb *Superblock, version uint8, name string) (uint32, bool) {

	signed := sb.Flags&FlagsUnsignedHash == 0

	switch version {
	case HashVersionLegacyUnsigned, HashVersionHalfMD4Unsigned, HashVersionTeaUnsigned:
		signed = false
		version -= 3
	}

	// This is the starting state of the hashing buffer. Don't ask why,
	// that's just the way it is.
	buf := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}
	seeded := false
	for _, x := range sb.HashSeed {
		if x != 0 {
			seeded = true
		}
	}
	if seeded {
		buf = sb.HashSeed
	}

	var hash uint32
	switch version {
	case HashVersionLegacy:
		hash = legacyHash(name, signed)
	case HashVersionHalfMD4:
		hash = halfMD4Hash(name, &buf, signed)
	case HashVersionTea:
		hash = teaHash(name, &buf, signed)
	default:
		return 0, false
	}

	hash = hash &^ 0x1

	// cap hash to a maximum value
	if hash > 0xFFFFFFFC {
		hash = 0xFFFFFFFC
	}

	return hash, true

}
