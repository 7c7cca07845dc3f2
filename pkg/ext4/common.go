package ext4

func divide(a, b int64) int64 {
	return (a + b - 1) / b
}

func cstring(data []byte) string {
	for i := 0; i < len(data); i++ {
		if data[i] == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// combine joins the low and high halves of a split 64-bit on-disk field.
func combine(lo, hi uint32) uint64 {
	return uint64(lo) | (uint64(hi) << 32)
}

func isPowerOf(g, k int64) bool {
	for g > 1 && g%k == 0 {
		g /= k
	}
	return g == 1
}
