package pathfinder

// bitset tracks visited vertices along a path.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) has(i int) bool {
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b bitset) add(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}

// with returns a copy of b with i added.
func (b bitset) with(i int) bitset {
	out := make(bitset, len(b))
	copy(out, b)
	out.add(i)
	return out
}
