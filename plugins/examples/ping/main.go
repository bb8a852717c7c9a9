//go:build wasip1

// Command ping is an example WASM action plugin.
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o ping.wasm ./plugins/examples/ping
package main

import (
	"time"

	"github.com/andrei-cloud/keydeck/pkg/deckplugin"
)

func init() {
	deckplugin.Register(
		deckplugin.Action{
			ID:   "example-ping",
			Name: "Ping",
			Run: func() error {
				deckplugin.LogInfo("pong")
				return nil
			},
		},
		deckplugin.Action{
			ID:     "example-clock",
			Name:   "Clock",
			Config: map[string]string{"layout": time.Kitchen},
			Run: func() error {
				deckplugin.LogInfo(time.Now().Format(time.Kitchen))
				return nil
			},
		},
	)
}

//go:wasmexport Alloc
func Alloc(size uint32) uint32 {
	return deckplugin.Alloc(size)
}

//go:wasmexport Free
func Free(ptr uint32) {
	deckplugin.Free(ptr)
}

//go:wasmexport Actions
func Actions() uint64 {
	return deckplugin.Actions()
}

//go:wasmexport Execute
func Execute(ptr, length uint32) uint64 {
	return deckplugin.Execute(ptr, length)
}

func main() {}
