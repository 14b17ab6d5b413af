package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// 受験者ID列として認識するヘッダー名
var examineeIDHeaders = []string{"student_id", "examinee_id", "student", "examinee", "id", "受験者ID", "生徒ID"}

// ImportedMatrix アップロードされた得点表
type ImportedMatrix struct {
	ItemIDs     []string
	ExamineeIDs []string
	Scores      [][]float64
}

// ResponseMatrix converts the table to a ResponseMatrix. A positive maxPoints applies to every item.
func (m *ImportedMatrix) ResponseMatrix(maxPoints float64) ResponseMatrix {
	rm := ResponseMatrix{Scores: m.Scores, ItemIDs: m.ItemIDs}
	if maxPoints > 0 {
		rm.MaxPoints = make([]float64, len(m.ItemIDs))
		for j := range rm.MaxPoints {
			rm.MaxPoints[j] = maxPoints
		}
	}
	return rm
}

// BinaryResponses converts the table to a 0/1 matrix, rejecting any other value.
func (m *ImportedMatrix) BinaryResponses() ([][]int, error) {
	out := make([][]int, len(m.Scores))
	for i, row := range m.Scores {
		out[i] = make([]int, len(row))
		for j, v := range row {
			if v != 0 && v != 1 {
				return nil, invalidInputf("response at row %d, item %s must be 0 or 1, got %v", i+1, m.ItemIDs[j], v)
			}
			out[i][j] = int(v)
		}
	}
	return out, nil
}

// fileFormat returns "xlsx" or "csv" based on the file name extension.
func fileFormat(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return "xlsx", nil
	case ".csv":
		return "csv", nil
	}
	return "", invalidInputf("unsupported file type %q (upload .xlsx or .csv)", filename)
}

func readRows(filename string, r io.Reader) ([][]string, error) {
	format, err := fileFormat(filename)
	if err != nil {
		return nil, err
	}
	if format == "xlsx" {
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open xlsx file")
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, errors.Wrap(err, "failed to read xlsx rows")
		}
		return rows, nil
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, invalidInputf("failed to parse csv: %v", err)
	}
	return rows, nil
}

// ParseResponseFile 得点表（.xlsx / .csv）を読み込む
// The first row holds question IDs; an optional examinee-ID column is detected by its header.
func ParseResponseFile(filename string, r io.Reader) (*ImportedMatrix, error) {
	rows, err := readRows(filename, r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, invalidInputf("file is empty")
	}

	header := rows[0]
	idCol := findColumn(header, examineeIDHeaders...)
	var itemCols []int
	out := &ImportedMatrix{}
	for c, h := range header {
		h = strings.TrimSpace(h)
		if c == idCol || h == "" {
			continue
		}
		itemCols = append(itemCols, c)
		out.ItemIDs = append(out.ItemIDs, h)
	}
	if len(itemCols) == 0 {
		return nil, invalidInputf("header row has no item columns: %v", header)
	}

	for idx, row := range rows[1:] {
		line := idx + 2
		if isBlankRow(row) {
			continue
		}
		scores := make([]float64, len(itemCols))
		for j, c := range itemCols {
			if c >= len(row) || strings.TrimSpace(row[c]) == "" {
				return nil, invalidInputf("line %d: missing score for item %s", line, out.ItemIDs[j])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				return nil, invalidInputf("line %d: score %q for item %s is not a number", line, row[c], out.ItemIDs[j])
			}
			scores[j] = v
		}
		examineeID := fmt.Sprintf("%d", len(out.Scores)+1)
		if idCol >= 0 && idCol < len(row) && strings.TrimSpace(row[idCol]) != "" {
			examineeID = strings.TrimSpace(row[idCol])
		}
		out.ExamineeIDs = append(out.ExamineeIDs, examineeID)
		out.Scores = append(out.Scores, scores)
	}
	return out, nil
}

// WriteResponseFile writes a 0/1 matrix in the layout ParseResponseFile reads.
func WriteResponseFile(w io.Writer, filename string, itemIDs, examineeIDs []string, responses [][]int) error {
	format, err := fileFormat(filename)
	if err != nil {
		return err
	}
	header := append([]string{"examinee_id"}, itemIDs...)

	if format == "csv" {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return errors.Wrap(err, "failed to write csv header")
		}
		for i, row := range responses {
			rec := make([]string, 0, len(row)+1)
			rec = append(rec, examineeIDs[i])
			for _, v := range row {
				rec = append(rec, strconv.Itoa(v))
			}
			if err := cw.Write(rec); err != nil {
				return errors.Wrapf(err, "failed to write csv row %d", i+1)
			}
		}
		cw.Flush()
		return errors.Wrap(cw.Error(), "failed to flush csv")
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	headerCells := make([]interface{}, len(header))
	for c, h := range header {
		headerCells[c] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return errors.Wrap(err, "failed to write xlsx header")
	}
	for i, row := range responses {
		cells := make([]interface{}, 0, len(row)+1)
		cells = append(cells, examineeIDs[i])
		for _, v := range row {
			cells = append(cells, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "failed to resolve cell name")
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return errors.Wrapf(err, "failed to write xlsx row %d", i+1)
		}
	}
	_, err = f.WriteTo(w)
	return errors.Wrap(err, "failed to write xlsx file")
}

// findColumn finds the index of the first candidate header (case-insensitive)
func findColumn(header []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, item := range header {
			if strings.EqualFold(strings.TrimSpace(item), candidate) {
				return i
			}
		}
	}
	return -1
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
