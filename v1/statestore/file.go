package statestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

// File stores the state as a single word in a text file. Writes go through
// a temporary file and a rename so a crash never leaves a torn value.
type File struct {
	path string
}

// NewFile returns a File store at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Load implements Store.Load.
func (f *File) Load(ctx context.Context) (lock.State, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return lock.Unlocked, false, nil
	}
	if err != nil {
		return lock.Unlocked, false, fmt.Errorf("statestore: read %s: %w", f.path, err)
	}
	s, err := lock.ParseState(string(data))
	if err != nil {
		return lock.Unlocked, false, fmt.Errorf("statestore: %s: %w", f.path, err)
	}
	return s, true, nil
}

// Save implements Store.Save.
func (f *File) Save(ctx context.Context, s lock.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".lockstate-*")
	if err != nil {
		return fmt.Errorf("statestore: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(s.String() + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}
