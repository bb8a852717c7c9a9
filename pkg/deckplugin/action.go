package deckplugin

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action is one key action exported by a plugin module.
type Action struct {
	ID     string
	Name   string
	Config any
	Run    func() error
}

type actionInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Config any    `json:"config,omitempty"`
}

type result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

var actions []Action

// Register adds actions to the module's export list.
func Register(a ...Action) {
	actions = append(actions, a...)
}

// ActionsJSON encodes the registered actions for the Actions export.
func ActionsJSON() []byte {
	infos := make([]actionInfo, 0, len(actions))
	for _, a := range actions {
		infos = append(infos, actionInfo{ID: a.ID, Name: a.Name, Config: a.Config})
	}

	data, err := json.Marshal(infos)
	if err != nil {
		LogError("failed to encode actions: " + err.Error())
		return []byte("[]")
	}

	return data
}

// Run executes the action with the given id and encodes the outcome for the
// Execute export. Panics are reported as failures.
func Run(id string) []byte {
	err := run(id)

	res := result{Success: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	data, _ := json.Marshal(res)

	return data
}

func run(id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", id, r)
		}
	}()

	for _, a := range actions {
		if a.ID != id {
			continue
		}
		if a.Run == nil {
			return fmt.Errorf("action %s has no behavior", id)
		}

		return a.Run()
	}

	return errors.New("unknown action " + id)
}

// Actions implements the Actions export.
func Actions() uint64 {
	return Return(ActionsJSON())
}

// Execute implements the Execute export.
func Execute(ptr, length uint32) uint64 {
	return Return(Run(string(ReadBytes(ptr, length))))
}
