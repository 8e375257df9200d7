package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	ErrNotCSV   = errors.New("file must be a .csv")
	ErrEmptyCSV = errors.New("csv has no header row")
)

// ParseCSV reads a header row and the records below it. Short records are
// padded with NULL cells, long ones are cut to the header width. Blank
// lines are skipped by the reader.
func ParseCSV(r io.Reader) ([]string, [][]*string, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	var rows [][]*string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read record %d: %w", len(rows)+1, err)
		}
		row := make([]*string, len(headers))
		for i := 0; i < len(headers) && i < len(rec); i++ {
			v := rec[i]
			row[i] = &v
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func validateExt(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
