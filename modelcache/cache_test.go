package modelcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDirRoundTrip(t *testing.T) {
	d, err := NewDir(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := d.Load(ctx, "risk_classifier"); !errors.Is(err, ErrMissing) {
		t.Fatalf("got %v, want ErrMissing", err)
	}

	a := Artifact{
		Name:          "risk_classifier",
		FormatVersion: 1,
		Columns:       []string{"attendance_rate", "unexcused_rate"},
		TrainedAt:     time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		Payload:       []byte(`{"bias":0.5}`),
	}
	if err := d.Save(ctx, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := d.Load(ctx, "risk_classifier")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, a) {
		t.Errorf("got %+v, want %+v", got, a)
	}

	a.FormatVersion = 2
	if err := d.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	if got, _ := d.Load(ctx, "risk_classifier"); got.FormatVersion != 2 {
		t.Errorf("last writer should win, got version %d", got.FormatVersion)
	}
}

func TestDirCorruptFileIsMissing(t *testing.T) {
	dir := t.TempDir()
	d, _ := NewDir(dir)
	path := filepath.Join(dir, "cluster_model.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Load(context.Background(), "cluster_model"); !errors.Is(err, ErrMissing) {
		t.Errorf("got %v, want ErrMissing", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt file should be removed")
	}
}

func TestArtifactMatches(t *testing.T) {
	a := Artifact{FormatVersion: 1, Columns: []string{"a", "b"}}
	tests := []struct {
		name    string
		version int
		columns []string
		want    bool
	}{
		{"same", 1, []string{"a", "b"}, true},
		{"other version", 2, []string{"a", "b"}, false},
		{"column order", 1, []string{"b", "a"}, false},
		{"extra column", 1, []string{"a", "b", "c"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Matches(tt.version, tt.columns); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
