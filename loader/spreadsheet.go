package loader

import (
	"context"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetSource reads the first (or named) sheet of an xlsx workbook.
type SpreadsheetSource struct {
	Path  string
	Sheet string
}

func (s *SpreadsheetSource) Name() string {
	return s.Path
}

func (s *SpreadsheetSource) Read(ctx context.Context) (*RawTable, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, &LoadError{Kind: UnreadableSource, Source: s.Path, Err: err}
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &LoadError{Kind: UnreadableSource, Source: s.Path, Err: err}
	}
	if len(rows) == 0 {
		return nil, &LoadError{Kind: EmptySource, Source: s.Path}
	}

	header := rows[0]
	body := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// GetRows trims trailing empty cells.
		for len(row) < len(header) {
			row = append(row, "")
		}
		body = append(body, row)
	}
	return &RawTable{Header: header, Rows: body}, nil
}
