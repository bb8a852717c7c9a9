package plugins

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// UnpackResult splits a packed ptr<<32|len value.
func UnpackResult(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// AllocBuffer allocates guest memory via the module's Alloc export and writes
// data into it, returning the guest pointer.
func AllocBuffer(ctx context.Context, mod api.Module, alloc api.Function, data []byte) (uint32, error) {
	length := uint32(len(data))
	if length == 0 {
		return 0, errors.New("buffer length is zero")
	}

	results, err := alloc.Call(ctx, uint64(length))
	if err != nil {
		return 0, fmt.Errorf("alloc failed: %w", err)
	}
	if len(results) < 1 {
		return 0, errors.New("alloc returned no results")
	}

	ptr := api.DecodeU32(results[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, errors.New("memory write failed: bounds exceeded")
	}

	return ptr, nil
}

// CallPacked invokes fn with params and returns its single packed result.
func CallPacked(ctx context.Context, fn api.Function, params ...uint64) (uint64, error) {
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, fmt.Errorf("call %s failed: %w", fn.Definition().Name(), err)
	}
	if len(results) < 1 {
		return 0, errors.New("invalid call result")
	}

	return results[0], nil
}

// ReadBuffer copies the guest bytes addressed by a packed ptr<<32|len value.
func ReadBuffer(mod api.Module, packed uint64) ([]byte, error) {
	ptr, length := UnpackResult(packed)
	if length == 0 {
		return nil, nil
	}

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, errors.New("memory read failed: bounds exceeded")
	}

	// Read returns a view of guest memory, which the next call may overwrite.
	return append([]byte(nil), data...), nil
}
