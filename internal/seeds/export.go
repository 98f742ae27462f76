package seeds

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"optibooking/internal/domain/stay"
	"optibooking/pkg/errors"
)

// Header matches the upload layout the ingestion parser reads
var Header = []string{"stay_id", "begin_of_stay", "end_of_stay", "persons", "room_type", "total_price"}

func row(i int, r stay.Record) []string {
	return []string{
		strconv.Itoa(i + 1),
		r.BeginOfStay.Format(stay.DateLayout),
		r.EndOfStay.Format(stay.DateLayout),
		strconv.Itoa(r.Persons),
		r.RoomType,
		r.TotalPrice.StringFixed(2),
	}
}

// WriteCSV writes records in upload format
func WriteCSV(w io.Writer, records []stay.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, r := range records {
		if err := cw.Write(row(i, r)); err != nil {
			return errors.Wrapf(err, "write row %d", i+2)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteXLSX writes records to the first sheet of a new workbook
func WriteXLSX(w io.Writer, records []stay.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return errors.Wrap(err, "open stream writer")
	}

	if err := sw.SetRow("A1", toCells(Header)); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrapf(err, "row %d", i+2)
		}
		if err := sw.SetRow(cell, toCells(row(i, r))); err != nil {
			return errors.Wrapf(err, "write row %d", i+2)
		}
	}
	if err := sw.Flush(); err != nil {
		return errors.Wrap(err, "flush sheet")
	}

	_, err = f.WriteTo(w)
	return errors.Wrap(err, "write workbook")
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
