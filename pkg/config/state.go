package config

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// State is the mutable scan state, kept separate from the read-only config so
// the scanner can write it back without touching user settings.
type State struct {
	LastScan time.Time `json:"last_scan"`
}

// LoadState reads the state file. A missing file is not an error; it yields a
// zero state, which makes the next incremental scan process everything.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &State{}, nil
		}
		return nil, errors.WithStack(err)
	}

	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, errors.WithStack(err)
	}

	return state, nil
}

// Save writes the state file, creating its directory if needed.
func (s *State) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WithStack(err)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	err = os.WriteFile(path, data, 0644) //nolint:gosec
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}
