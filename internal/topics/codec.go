package topics

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/fuomag9/paperdrive/internal/errs"
)

// Header aliases accepted when reading. Keys are lower case.
var headerAliases = map[string]string{
	"sl_no":       ColSerial,
	"serial":      ColSerial,
	"name":        ColName,
	"title":       ColName,
	"year":        ColYear,
	"publication": ColPublication,
	"page_no":     ColPageNo,
	"summary":     ColSummary,
	"abstract":    ColAbstract,
	"doi":         ColIdentifier,
	"identifier":  ColIdentifier,
	"author":      ColAuthor,
	"remarks":     ColRemarks,
}

// MaxCellChars is the longest value a workbook cell holds. Longer values
// would be cut by the writer, so Encode refuses them.
const MaxCellChars = excelize.TotalCellChars

// Encode writes records to an xlsx workbook with a header row in column
// order. An empty dataset still gets its header.
func Encode(records []Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := rec.row()
		for j, v := range row {
			if str, ok := v.(string); ok && utf8.RuneCountInString(str) > MaxCellChars {
				return nil, fmt.Errorf("%w: record %d: %s exceeds %d characters", errs.ErrValidation, rec.Serial, Columns[j], MaxCellChars)
			}
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", rec.Serial, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses the first sheet of an xlsx workbook. Columns are located by
// header name; absent columns and blank cells read as "".
func Decode(data []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable topic file: %v", errs.ErrValidation, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable topic sheet: %v", errs.ErrValidation, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: topic file has no header row", errs.ErrValidation)
	}

	index := map[string]int{}
	for i, h := range rows[0] {
		if col, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	if len(index) == 0 {
		return nil, fmt.Errorf("%w: topic file header has no known columns", errs.ErrValidation)
	}

	var records []Record
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		cell := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		serial := len(records) + 1
		if raw := cell(ColSerial); raw != "" {
			serial, err = parseSerial(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", errs.ErrValidation, n+2, err)
			}
		}

		records = append(records, Record{
			Serial:      serial,
			Name:        cell(ColName),
			Year:        cell(ColYear),
			Publication: cell(ColPublication),
			PageNo:      cell(ColPageNo),
			Summary:     cell(ColSummary),
			Abstract:    cell(ColAbstract),
			Identifier:  cell(ColIdentifier),
			Author:      cell(ColAuthor),
			Remarks:     cell(ColRemarks),
		})
	}
	return records, nil
}

// parseSerial accepts integers and integral floats ("3.0").
func parseSerial(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid serial %q", raw)
	}
	return int(f), nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
