package modelcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"time"
)

var ErrMissing = errors.New("model not cached")

// Artifact is a named, versioned model blob plus the source columns it was
// trained on.
type Artifact struct {
	Name          string    `json:"name"`
	FormatVersion int       `json:"format_version"`
	Columns       []string  `json:"columns"`
	TrainedAt     time.Time `json:"trained_at"`
	Payload       []byte    `json:"payload"`
}

// Matches reports whether the artifact can stand in for a model trained on
// columns with the given format version.
func (a Artifact) Matches(version int, columns []string) bool {
	return a.FormatVersion == version && slices.Equal(a.Columns, columns)
}

// Cache persists artifacts by name. Writers win last.
type Cache interface {
	Save(ctx context.Context, a Artifact) error
	Load(ctx context.Context, name string) (Artifact, error)
}

// Dir stores one JSON file per model.
type Dir struct {
	Path string
}

func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create model cache dir: %w", err)
	}
	return &Dir{Path: path}, nil
}

func (d *Dir) file(name string) string {
	return filepath.Join(d.Path, name+".json")
}

func (d *Dir) Save(ctx context.Context, a Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a.Name, err)
	}
	tmp, err := os.CreateTemp(d.Path, "."+a.Name+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.file(a.Name))
}

// Load returns ErrMissing for absent files. Empty or corrupt files are
// removed and also reported as missing.
func (d *Dir) Load(ctx context.Context, name string) (Artifact, error) {
	path := d.file(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Artifact{}, ErrMissing
	}
	if err != nil {
		return Artifact{}, err
	}

	var a Artifact
	if len(data) == 0 || json.Unmarshal(data, &a) != nil || a.Name != name {
		log.Printf("warning: removing corrupt model cache file %s", path)
		os.Remove(path)
		return Artifact{}, ErrMissing
	}
	return a, nil
}
