package deckplugin

// ReadBytes returns length bytes of the buffer allocated at ptr, or nil when
// ptr is not a live allocation.
func ReadBytes(ptr, length uint32) []byte {
	mu.Lock()
	defer mu.Unlock()

	buf, ok := pinned[ptr]
	if !ok || int(length) > len(buf) {
		return nil
	}

	return buf[:length:length]
}

// PackResult combines a pointer and a length into a single uint64 result.
func PackResult(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// UnpackResult splits a packed result into pointer and length.
func UnpackResult(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// Return copies data into a fresh buffer and returns it packed. The previous
// output buffer is released; the host copies results before the next call.
func Return(data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}
	ptr := Alloc(uint32(len(data)))

	mu.Lock()
	copy(pinned[ptr], data)
	prev := output
	output = ptr
	if prev != 0 && prev != ptr {
		delete(pinned, prev)
	}
	mu.Unlock()

	return PackResult(ptr, uint32(len(data)))
}
