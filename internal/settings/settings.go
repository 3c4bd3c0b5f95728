// Package settings reads and writes the per-project .workit.yaml file.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the project directory.
const FileName = ".workit.yaml"

// Settings holds the persisted mode switch.
type Settings struct {
	// Full selects the MongoDB-backed API server by default.
	Full bool `yaml:"full"`
}

// Path returns the settings file location for dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the settings file in dir. A missing file yields zero Settings
// and found=false.
func Load(dir string) (s Settings, found bool, err error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("read settings: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Settings{}, true, nil
		}
		return Settings{}, false, fmt.Errorf("%s: decode: %w", path, err)
	}
	return s, true, nil
}

// Save writes s to the settings file in dir, replacing it atomically.
func Save(dir string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), Path(dir)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
