package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	instructionsSheet = "Instructions"
)

// TemplateFile describes a downloadable template.
type TemplateFile struct {
	Filename    string
	ContentType string
}

func TemplateFor(kind *Kind, format string) (TemplateFile, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return TemplateFile{Filename: kind.Name + "-template.csv", ContentType: "text/csv"}, nil
	case FormatXLSX:
		return TemplateFile{
			Filename:    kind.Name + "-template.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		}, nil
	}
	return TemplateFile{}, fmt.Errorf("unsupported template format %q", format)
}

// WriteTemplate writes the column headers of kind and one example row.
// XLSX templates carry a second sheet describing every column.
func WriteTemplate(w io.Writer, kind *Kind, format string) error {
	if _, err := TemplateFor(kind, format); err != nil {
		return err
	}
	if strings.EqualFold(format, FormatXLSX) {
		return writeXLSXTemplate(w, kind)
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(kind.Columns()); err != nil {
		return err
	}
	if err := writer.Write(exampleRow(kind)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func exampleRow(kind *Kind) []string {
	columns := kind.Columns()
	row := make([]string, len(columns))
	for i, col := range columns {
		if f, ok := kind.Field(col); ok {
			row[i] = f.Example
		}
	}
	return row
}

func writeXLSXTemplate(w io.Writer, kind *Kind) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := kind.Label
	if sheet == "" {
		sheet = kind.Name
	}
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	columns := kind.Columns()
	example := exampleRow(kind)
	for i, col := range columns {
		header, _ := excelize.CoordinatesToCellName(i+1, 1)
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(sheet, header, col); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, example[i]); err != nil {
			return err
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, name, name, float64(max(12, len(col)+4)))
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	if err := writeInstructions(f, kind, headerStyle); err != nil {
		return err
	}

	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func writeInstructions(f *excelize.File, kind *Kind, headerStyle int) error {
	if _, err := f.NewSheet(instructionsSheet); err != nil {
		return fmt.Errorf("create instructions sheet: %w", err)
	}
	rows := [][]string{{"column", "type", "required", "also accepted as", "notes"}}
	for _, field := range kind.Fields {
		notes := field.Description
		if field.Name == kind.NaturalKey && kind.Sequence != nil {
			notes = strings.TrimSpace(notes + fmt.Sprintf(" Leave empty to generate %s numbers.", FormatKey(*kind.Sequence, 1)))
		}
		rows = append(rows, []string{field.Name, string(field.Type), yesNo(field.Required), strings.Join(field.Aliases, ", "), notes})
	}
	for i := range kind.References {
		ref := &kind.References[i]
		for _, col := range ref.Columns() {
			required := ref.Required && col == ref.CodeColumn()
			note := fmt.Sprintf("Links to %s. Give one of %s.", ref.Target().Name, strings.Join(ref.Columns(), ", "))
			if ref.AutoCreate && col == ref.NameColumn() {
				note += " Unknown names can be created automatically."
			}
			rows = append(rows, []string{col, "reference", yesNo(required), "", note})
		}
	}

	for r, values := range rows {
		for c, value := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(instructionsSheet, cell, value); err != nil {
				return err
			}
		}
	}
	_ = f.SetColWidth(instructionsSheet, "A", "A", 22)
	_ = f.SetColWidth(instructionsSheet, "D", "E", 45)
	return f.SetCellStyle(instructionsSheet, "A1", "E1", headerStyle)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
