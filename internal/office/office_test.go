package office

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Timetable 2024-2025</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>MONDAY</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>09:00-10:00</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Maths</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>TUESDAY</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>10:00-11:00</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>PE</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body>
</w:document>`

const headerXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:hdr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:p><w:r><w:t>Ms. Okafor</w:t></w:r></w:p></w:hdr>`

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeDOCX(t *testing.T, files map[string][]byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "timetable.docx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestReadDOCX(t *testing.T) {
	p := writeDOCX(t, map[string][]byte{
		"word/document.xml":   []byte(documentXML),
		"word/header1.xml":    []byte(headerXML),
		"word/media/img1.png": tinyPNG(t),
		"word/media/logo.emf": []byte("vector"),
	})

	doc, err := Read(p)
	require.NoError(t, err)
	assert.Equal(t, "docx", doc.Format)
	assert.Contains(t, doc.Text, "Ms. Okafor")
	assert.Contains(t, doc.Text, "MONDAY\t09:00-10:00\tMaths")
	assert.Contains(t, doc.Text, "TUESDAY\t10:00-11:00\tPE")
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "image/png", doc.Images[0].MIME)
	assert.Greater(t, doc.TextLen(), 50)
}

func TestReadDOCXMissingBody(t *testing.T) {
	p := writeDOCX(t, map[string][]byte{"word/styles.xml": []byte("<x/>")})
	_, err := ReadDOCX(p)
	require.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Day"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Time"))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", "Subject"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "WEDNESDAY"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "13:00-14:00"))
	require.NoError(t, f.SetCellValue("Sheet1", "C2", "Chemistry"))
	require.NoError(t, f.AddPictureFromBytes("Sheet1", "E2", &excelize.Picture{
		Extension: ".png",
		File:      tinyPNG(t),
		Format:    &excelize.GraphicOptions{},
	}))
	p := filepath.Join(t.TempDir(), "grid.xlsx")
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	doc, err := Read(p)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", doc.Format)
	assert.Contains(t, doc.Text, "WEDNESDAY\t13:00-14:00\tChemistry")
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "image/png", doc.Images[0].MIME)
}

func TestReadUnsupported(t *testing.T) {
	_, err := Read("timetable.odt")
	require.Error(t, err)
}
