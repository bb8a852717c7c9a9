package plugins

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostFunctions exposes the `env` host module to WASM plugins.
type HostFunctions struct {
	builder wazero.HostModuleBuilder
}

// NewHostFunctions creates the host module builder on runtime.
func NewHostFunctions(runtime wazero.Runtime) *HostFunctions {
	return &HostFunctions{builder: runtime.NewHostModuleBuilder("env")}
}

// Register adds all host functions and instantiates the env module.
func (h *HostFunctions) Register(ctx context.Context) error {
	h.builder.NewFunctionBuilder().
		WithFunc(h.logDebug).
		Export("log_debug")

	h.builder.NewFunctionBuilder().
		WithFunc(h.logInfo).
		Export("log_info")

	h.builder.NewFunctionBuilder().
		WithFunc(h.logError).
		Export("log_error")

	if _, err := h.builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host functions module: %w", err)
	}

	return nil
}

// readMemory safely reads bytes from WASM module memory.
func readMemory(mod api.Module, ptr, size uint32) ([]byte, error) {
	if mod == nil {
		return nil, fmt.Errorf("nil module")
	}

	memory := mod.Memory()
	if memory == nil {
		return nil, fmt.Errorf("no memory exported")
	}

	data, ok := memory.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("failed to read memory at %d[%d]", ptr, size)
	}

	return data, nil
}

func (h *HostFunctions) logDebug(_ context.Context, mod api.Module, ptr, size uint32) {
	h.forward(zerolog.DebugLevel, mod, ptr, size)
}

func (h *HostFunctions) logInfo(_ context.Context, mod api.Module, ptr, size uint32) {
	h.forward(zerolog.InfoLevel, mod, ptr, size)
}

func (h *HostFunctions) logError(_ context.Context, mod api.Module, ptr, size uint32) {
	h.forward(zerolog.ErrorLevel, mod, ptr, size)
}

func (h *HostFunctions) forward(level zerolog.Level, mod api.Module, ptr, size uint32) {
	data, err := readMemory(mod, ptr, size)
	if err != nil {
		log.Error().Err(err).Msg("failed to read plugin log message")
		return
	}

	log.WithLevel(level).
		Str("source", "wasm").
		Str("module", mod.Name()).
		Msg(string(data))
}
