package office

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// ReadDOCX extracts paragraph and table text from word/document.xml (headers first,
// so a teacher name in the page header is kept) and every image under word/media.
func ReadDOCX(p string) (*Document, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var body *zip.File
	var headers []*zip.File
	doc := &Document{Format: "docx"}

	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			body = f
		case strings.HasPrefix(f.Name, "word/header") && strings.HasSuffix(f.Name, ".xml"):
			headers = append(headers, f)
		case strings.HasPrefix(f.Name, "word/media/"):
			mime := imageMIME(f.Name)
			if mime == "" {
				continue
			}
			data, err := readZipFile(f)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
			doc.Images = append(doc.Images, Image{Name: path.Base(f.Name), MIME: mime, Data: data})
		}
	}
	if body == nil {
		return nil, fmt.Errorf("docx: word/document.xml not found")
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
	sort.Slice(doc.Images, func(i, j int) bool { return doc.Images[i].Name < doc.Images[j].Name })

	var b strings.Builder
	for _, h := range append(headers, body) {
		rc, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", h.Name, err)
		}
		err = wordText(rc, &b)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", h.Name, err)
		}
	}
	doc.Text = strings.TrimSpace(b.String())
	return doc, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// wordText walks WordprocessingML tokens. Table cells are separated by tabs and rows by
// newlines, which keeps timetable grids readable for the language model.
func wordText(r io.Reader, b *strings.Builder) error {
	dec := xml.NewDecoder(r)
	inText := false
	cellStart, rowStart := -1, -1
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			case "tc":
				cellStart = b.Len()
			case "tr":
				rowStart = b.Len()
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			case "tc":
				trimSince(b, cellStart, "\n")
				b.WriteByte('\t')
			case "tr":
				trimSince(b, rowStart, "\t\n")
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}

// trimSince strips cutset characters from the end of b without touching text written before start.
func trimSince(b *strings.Builder, start int, cutset string) {
	s := b.String()
	if start < 0 || start > len(s) {
		start = 0
	}
	tail := strings.TrimRight(s[start:], cutset)
	if len(tail) == len(s)-start {
		return
	}
	b.Reset()
	b.WriteString(s[:start])
	b.WriteString(tail)
}
