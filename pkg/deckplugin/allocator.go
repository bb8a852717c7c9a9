// Package deckplugin provides helper functions for WASM action plugins.
package deckplugin

import (
	"sync"
	"unsafe"
)

// pinned keeps buffers handed to the host reachable until freed.
var (
	mu     sync.Mutex
	pinned = map[uint32][]byte{}
	output uint32
)

// Alloc allocates n bytes and returns their address in linear memory.
func Alloc(n uint32) uint32 {
	if n == 0 {
		n = 1
	}
	buf := make([]byte, n)
	ptr := addr(buf)

	mu.Lock()
	pinned[ptr] = buf
	mu.Unlock()

	return ptr
}

// Free releases a buffer returned by Alloc.
func Free(ptr uint32) {
	mu.Lock()
	delete(pinned, ptr)
	mu.Unlock()
}

// Pinned returns the number of live buffers.
func Pinned() int {
	mu.Lock()
	defer mu.Unlock()

	return len(pinned)
}

//nolint:gosec // linear memory addresses fit in 32 bits on wasm32.
func addr(buf []byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(&buf[0])))
}
