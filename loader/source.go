package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// RawTable is rows with named columns, independent of the storage format.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Source reads the raw record set.
type Source interface {
	Name() string
	Read(ctx context.Context) (*RawTable, error)
}

// CSVSource reads the primary columnar store.
type CSVSource struct {
	Path string
}

func (s *CSVSource) Name() string {
	return s.Path
}

func (s *CSVSource) Read(ctx context.Context) (*RawTable, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &LoadError{Kind: UnreadableSource, Source: s.Path, Err: err}
	}
	defer f.Close()
	return readCSV(s.Path, f)
}

func readCSV(name string, r io.Reader) (*RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &LoadError{Kind: EmptySource, Source: name}
	}
	if err != nil {
		return nil, &LoadError{Kind: UnreadableSource, Source: name, Err: err}
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &LoadError{Kind: UnreadableSource, Source: name, Err: err}
	}
	return &RawTable{Header: header, Rows: rows}, nil
}

// WriteCSV persists a table in the primary format.
func WriteCSV(path string, t *RawTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".import-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FallbackSource reads Primary and, when that fails, reads Secondary and
// converts it to the primary CSV format at ConvertTo for future loads.
type FallbackSource struct {
	Primary   Source
	Secondary Source
	ConvertTo string
}

func (s *FallbackSource) Name() string {
	return fmt.Sprintf("%s (fallback %s)", s.Primary.Name(), s.Secondary.Name())
}

func (s *FallbackSource) Read(ctx context.Context) (*RawTable, error) {
	t, err := s.Primary.Read(ctx)
	if err == nil {
		return t, nil
	}
	log.Printf("warning: primary source %s failed, trying %s: %v", s.Primary.Name(), s.Secondary.Name(), err)

	t, err2 := s.Secondary.Read(ctx)
	if err2 != nil {
		return nil, unreadable(s.Name(), errors.Join(err, err2))
	}
	if s.ConvertTo != "" {
		if err := WriteCSV(s.ConvertTo, t); err != nil {
			log.Printf("warning: convert %s to %s failed: %v", s.Secondary.Name(), s.ConvertTo, err)
		} else {
			log.Printf("converted %s to %s (%d rows)", s.Secondary.Name(), s.ConvertTo, len(t.Rows))
		}
	}
	return t, nil
}
