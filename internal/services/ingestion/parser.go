package ingestion

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"optibooking/internal/domain/stay"
	"optibooking/pkg/errors"
)

// Format is the tabular encoding of an upload
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from a file name
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", errors.NewValidationError("file", "unsupported file type, upload .csv or .xlsx", filename)
}

// Column positions. Column 0 is an export row id and is ignored; the two
// trailing columns are optional.
const (
	colBegin = iota + 1
	colEnd
	colPersons
	colRoomType
	colTotalPrice
	colOccupiedRooms
	colTotalRooms

	requiredColumns = colTotalPrice + 1
)

var columnNames = map[int]string{
	colBegin:         "begin_of_stay",
	colEnd:           "end_of_stay",
	colPersons:       "persons",
	colRoomType:      "room_type",
	colTotalPrice:    "total_price",
	colOccupiedRooms: "occupied_rooms",
	colTotalRooms:    "total_rooms",
}

// Parse decodes an upload into stay records. The first row is a header.
// Any malformed row aborts the whole upload with a *errors.ParseError
// carrying the 1-based file row.
func Parse(format Format, data []byte) ([]stay.Record, error) {
	rows, err := readRows(format, data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewParseError(1, "", errors.New("file is empty"))
	}

	records := make([]stay.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row.cells) {
			continue
		}
		r, err := parseRow(row.line, row.cells)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// sheetRow keeps the 1-based file line of a row
type sheetRow struct {
	line  int
	cells []string
}

func readRows(format Format, data []byte) ([]sheetRow, error) {
	switch format {
	case FormatCSV:
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		var rows []sheetRow
		for {
			cells, err := r.Read()
			if err == io.EOF {
				return rows, nil
			}
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					return nil, errors.NewParseError(perr.Line, "", perr.Err)
				}
				return nil, errors.NewParseError(len(rows)+1, "", err)
			}
			line, _ := r.FieldPos(0)
			rows = append(rows, sheetRow{line: line, cells: cells})
		}

	case FormatXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.NewParseError(0, "", errors.Wrap(err, "open workbook"))
		}
		defer f.Close()
		cells, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, errors.NewParseError(0, "", errors.Wrap(err, "read sheet"))
		}
		rows := make([]sheetRow, len(cells))
		for i, c := range cells {
			rows[i] = sheetRow{line: i + 1, cells: c}
		}
		return rows, nil
	}
	return nil, errors.NewValidationError("format", "unsupported format", string(format))
}

func parseRow(line int, row []string) (stay.Record, error) {
	if len(row) < requiredColumns {
		return stay.Record{}, errors.NewParseError(line, "", errors.Newf("expected at least %d columns, got %d", requiredColumns, len(row)))
	}
	cell := func(c int) string { return strings.TrimSpace(row[c]) }
	fail := func(c int, err error) (stay.Record, error) {
		return stay.Record{}, errors.NewParseError(line, columnNames[c], err)
	}

	var r stay.Record
	var err error
	if r.BeginOfStay, err = stay.ParseDate(cell(colBegin)); err != nil {
		return fail(colBegin, err)
	}
	if r.EndOfStay, err = stay.ParseDate(cell(colEnd)); err != nil {
		return fail(colEnd, err)
	}
	if r.Persons, err = strconv.Atoi(cell(colPersons)); err != nil {
		return fail(colPersons, err)
	}
	r.RoomType = cell(colRoomType)
	if r.TotalPrice, err = decimal.NewFromString(cell(colTotalPrice)); err != nil {
		return fail(colTotalPrice, err)
	}
	if r.OccupiedRooms, err = optionalInt(row, colOccupiedRooms); err != nil {
		return fail(colOccupiedRooms, err)
	}
	if r.TotalRooms, err = optionalInt(row, colTotalRooms); err != nil {
		return fail(colTotalRooms, err)
	}

	if err := r.Validate(); err != nil {
		var verr *errors.ValidationError
		if errors.As(err, &verr) {
			return stay.Record{}, errors.NewParseError(line, verr.Field, err)
		}
		return stay.Record{}, errors.NewParseError(line, "", err)
	}
	return r, nil
}

func optionalInt(row []string, c int) (*int, error) {
	if c >= len(row) || strings.TrimSpace(row[c]) == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(row[c]))
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
