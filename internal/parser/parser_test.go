package parser

import (
	"archive/zip"
	"bytes"
	"os"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"document-qa/internal/models"
)

func TestExtractTextUnsupportedExtension(t *testing.T) {
	for _, name := range []string{"notes.txt", "image.png", "README"} {
		text, err := ExtractText(models.UploadedFile{Name: name, Content: []byte("some content")})
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", name, err)
		}
		if text != "" {
			t.Fatalf("%s: expected empty text, got %q", name, text)
		}
	}
}

func TestExtractTextCorruptPDF(t *testing.T) {
	_, err := ExtractText(models.UploadedFile{Name: "broken.pdf", Content: []byte("not a pdf")})
	if err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
}

func TestDocxParagraphsJoinedInOrder(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
</w:body>
</w:document>`

	paragraphs, err := docxParagraphs(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"First paragraph", "", "Second\ttabbed"}
	if !reflect.DeepEqual(paragraphs, want) {
		t.Fatalf("expected %q, got %q", want, paragraphs)
	}
}

func TestDocxParagraphsIgnoreTabStopsAndTextBoxes(t *testing.T) {
	content := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
 xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
<w:body>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Hello</w:t></w:r></w:p>
<w:p><w:r><w:t>Line</w:t><w:br/><w:t>break</w:t></w:r></w:p>
<w:p><w:r><w:t>Before</w:t></w:r><w:r><w:pict><w:txbxContent><w:p><w:r><w:t>boxed</w:t></w:r></w:p></w:txbxContent></w:pict></w:r><w:r><w:t> after</w:t></w:r></w:p>
<w:p><w:r><w:drawing><a:p><a:r><a:t>shape text</a:t></a:r></a:p></w:drawing><w:t>Drawn</w:t></w:r></w:p>
</w:body>
</w:document>`

	paragraphs, err := docxParagraphs(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"Hello", "Line\nbreak", "Before after", "Drawn"}
	if !reflect.DeepEqual(paragraphs, want) {
		t.Fatalf("expected %q, got %q", want, paragraphs)
	}
}

func writeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractTextDOCX(t *testing.T) {
	data := writeZip(t, map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>Quarterly report</w:t></w:r></w:p>
<w:p/>
<w:p><w:r><w:t>Revenue grew.</w:t></w:r></w:p>
</w:body></w:document>`,
	})

	text, err := ExtractText(models.UploadedFile{Name: "report.docx", Content: data})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if want := "Quarterly report\n\nRevenue grew."; text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
}

func TestExtractTextPDFPagesConcatenated(t *testing.T) {
	data, err := os.ReadFile("testdata/two_pages.pdf")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	text, err := ExtractText(models.UploadedFile{Name: "two_pages.pdf", Content: data})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// each page holds 900 characters; pages join without a separator
	want := strings.Repeat("abcdefghi ", 180)
	if text != want {
		t.Fatalf("expected the %d characters of both pages in order, got %d: %q", len(want), len(text), text)
	}

	chunks, err := SplitText(text, 1000, 10)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
}

func TestExtractTextPPTXSlidesInOrder(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	slides := map[string]string{
		"ppt/slides/slide10.xml": "<p:sld><a:t>Tenth</a:t></p:sld>",
		"ppt/slides/slide2.xml":  "<p:sld><a:t>Second</a:t><a:t>slide</a:t></p:sld>",
		"ppt/slides/slide1.xml":  "<p:sld><a:t>First</a:t></p:sld>",
	}
	for _, name := range []string{"ppt/slides/slide10.xml", "ppt/slides/slide2.xml", "ppt/slides/slide1.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		w.Write([]byte(slides[name]))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	text, err := ExtractText(models.UploadedFile{Name: "deck.pptx", Content: buf.Bytes()})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "First\n\nSecond slide\n\nTenth" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextMacroWorkbook(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "name")
	f.SetCellValue("Sheet1", "B1", "qty")
	f.SetCellValue("Sheet1", "A2", "apple")
	f.SetCellValue("Sheet1", "B2", 3)
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	text, err := ExtractText(models.UploadedFile{Name: "stock.xlsm", Content: buf.Bytes()})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "## Sheet: Sheet1\nname\tqty\napple\t3\n"
	if text != want {
		t.Fatalf("expected %q, got %q", want, text)
	}
}

func TestSupported(t *testing.T) {
	for ext, want := range map[string]bool{".pdf": true, "DOCX": true, "xlsx": true, "txt": false} {
		if Supported(ext) != want {
			t.Errorf("Supported(%q) != %v", ext, want)
		}
	}
}

func TestSplitTextTwoChunks(t *testing.T) {
	text := strings.Repeat("abcdefghi ", 180)
	if len(text) != 1800 {
		t.Fatalf("fixture length %d", len(text))
	}

	chunks, err := SplitText(text, 1000, 10)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 1000 {
			t.Errorf("chunk %d has %d characters", i, n)
		}
	}
}

func TestSplitTextDeterministic(t *testing.T) {
	text := strings.Repeat("Sentence one is here. Another follows.\n\nNew paragraph with words. ", 60)

	first, err := SplitText(text, 200, 20)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	second, err := SplitText(text, 200, 20)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical chunk sequences for identical input")
	}
	if len(first) < 2 {
		t.Fatalf("expected several chunks, got %d", len(first))
	}
}

func TestSplitTextHardCut(t *testing.T) {
	text := strings.Repeat("x", 250)

	chunks, err := SplitText(text, 100, 0)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("expected chunks without overlap to reassemble the text")
	}
}

func TestSplitTextEmpty(t *testing.T) {
	chunks, err := SplitText(" \n\n ", 1000, 10)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestSplitTextOverlapClampedForSmallChunks(t *testing.T) {
	text := strings.Repeat("y", 20)

	chunks, err := SplitText(text, 4, 10)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) < 5 {
		t.Fatalf("expected the text to be cut into several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 4 {
			t.Errorf("chunk %d has %d characters", i, len(c))
		}
	}
}

func TestEffectiveOverlap(t *testing.T) {
	cases := []struct{ size, overlap, want int }{
		{1000, 10, 10},
		{1000, 1000, 10},
		{1000, -1, 10},
		{10, 10, 5},
		{4, 10, 2},
		{1, 0, 0},
		{1, 5, 0},
	}
	for _, tc := range cases {
		if got := effectiveOverlap(tc.size, tc.overlap); got != tc.want {
			t.Errorf("effectiveOverlap(%d, %d) = %d, want %d", tc.size, tc.overlap, got, tc.want)
		}
	}
}
