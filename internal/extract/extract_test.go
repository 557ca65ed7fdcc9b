package extract

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeDocx(t *testing.T, documentXML string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	part, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Pump maintenance procedure</w:t></w:r></w:p>
    <w:p><w:r><w:t>Step one: </w:t></w:r><w:r><w:t>isolate the pump</w:t></w:r></w:p>
    <w:p><w:r><w:t>Torque</w:t><w:tab/><w:t>45 Nm</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestDOCX(t *testing.T) {
	path := writeDocx(t, sampleDocumentXML)

	text, err := DOCX(path)
	if err != nil {
		t.Fatalf("DOCX() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	want := []string{
		"Pump maintenance procedure",
		"Step one: isolate the pump",
		"Torque\t45 Nm",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestDOCXMissingDocumentPart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	w.Close()
	f.Close()

	if _, err := DOCX(path); err == nil {
		t.Fatal("expected error for docx without document part")
	}
}

func TestXLSX(t *testing.T) {
	wb := excelize.NewFile()
	wb.SetCellValue("Sheet1", "A1", "equipment_id")
	wb.SetCellValue("Sheet1", "B1", "rating")
	wb.SetCellValue("Sheet1", "A2", "P-101")
	wb.SetCellValue("Sheet1", "B2", 150)
	if _, err := wb.NewSheet("Specs"); err != nil {
		t.Fatal(err)
	}
	wb.SetCellValue("Specs", "A1", "note")

	path := filepath.Join(t.TempDir(), "test.xlsx")
	if err := wb.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	text, err := XLSX(path)
	if err != nil {
		t.Fatalf("XLSX() error = %v", err)
	}

	for _, want := range []string{
		"Sheet: Sheet1",
		"equipment_id\trating",
		"P-101\t150",
		"Sheet: Specs",
		"note",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestFileDispatch(t *testing.T) {
	docx := writeDocx(t, sampleDocumentXML)

	text, format, err := File(docx)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if format != "docx" {
		t.Errorf("format = %q, want docx", format)
	}
	if !strings.Contains(text, "Pump maintenance procedure") {
		t.Errorf("text = %q", text)
	}
}

func TestFileUnsupported(t *testing.T) {
	_, _, err := File("notes.txt")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}
