package office

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX extracts tab-joined cell rows of every sheet and the pictures anchored in cells.
func ReadXLSX(path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc := &Document{Format: "xlsx"}
	sheets := f.GetSheetList()
	var b strings.Builder
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(sheets) > 1 && len(rows) > 0 {
			b.WriteString(sheet)
			b.WriteByte('\n')
		}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}

		cells, err := f.GetPictureCells(sheet)
		if err != nil {
			return nil, fmt.Errorf("list pictures in %q: %w", sheet, err)
		}
		for _, cell := range cells {
			pics, err := f.GetPictures(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("read picture %s!%s: %w", sheet, cell, err)
			}
			for i, pic := range pics {
				mime := imageMIME("x" + pic.Extension)
				if mime == "" || len(pic.File) == 0 {
					continue
				}
				doc.Images = append(doc.Images, Image{
					Name: fmt.Sprintf("%s_%s_%d%s", sheet, cell, i+1, pic.Extension),
					MIME: mime,
					Data: pic.File,
				})
			}
		}
	}
	doc.Text = strings.TrimSpace(b.String())
	return doc, nil
}
