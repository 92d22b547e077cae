package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// secretsFile stores service -> account -> value in a JSON document that
// only the owner can read.
type secretsFile struct {
	path string
}

func defaultSecretsFile() secretsFile {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return secretsFile{path: filepath.Join(dir, "prepdeck", "secrets.json")}
}

// load returns an empty set when the file does not exist yet. A file that
// exists but does not parse is an error, never an empty set.
func (f secretsFile) load() (map[string]map[string]string, error) {
	secrets := make(map[string]map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return secrets, nil
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", f.path, err)
	}
	return secrets, nil
}

// Get implements secretReader.
func (f secretsFile) Get(service, account string) (string, error) {
	secrets, err := f.load()
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("no secret stored for %s/%s", service, account)
	}
	return strings.TrimSpace(val), nil
}

func (f secretsFile) Set(service, account, value string) error {
	secrets, err := f.load()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}
