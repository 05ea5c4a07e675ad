package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"document-qa/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

type Parser interface {
	ExtractText(file models.UploadedFile) (string, error)
}

type extractor func(data []byte) (string, error)

var extractors = map[string]extractor{
	"pdf":  parsePDF,
	"docx": parseDOCX,
	"pptx": parsePPTX,
	"xlsx": parseXLSX,
	"xlsm": parseExcelize,
	"xltx": parseExcelize,
	"xltm": parseExcelize,
}

// ExtractText returns the plain text of an uploaded file. Files with an unknown extension yield
// empty text and no error.
func ExtractText(file models.UploadedFile) (string, error) {
	ext := file.Extension()
	extract, ok := extractors[ext]
	if !ok {
		log.Warn().Str("file", file.Name).Str("extension", ext).Msg("Unsupported file format, no text extracted")
		return "", nil
	}

	text, err := extract(file.Content)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", file.Name, err)
	}
	return text, nil
}

// Supported reports whether the extension has an extractor.
func Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

// pages are concatenated without a separator
func parsePDF(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	paragraphs, err := docxParagraphs(r.Editable().GetContent())
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n"), nil
}

const wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

func isWordElement(n xml.Name) bool {
	return n.Space == wordprocessingNS || n.Space == "w"
}

// docxParagraphs walks word/document.xml and returns the text of every top-level w:p in order,
// including empty paragraphs. Only run content counts: tab stops in paragraph properties are
// ignored, and paragraphs nested in text boxes do not split the enclosing one.
func docxParagraphs(content string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		paragraphs []string
		current    strings.Builder
		depth      int // open w:p elements
		runs       int // open w:r elements of the top-level paragraph
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !isWordElement(t.Name) {
				continue
			}
			inRun := depth == 1 && runs > 0
			switch t.Name.Local {
			case "p":
				depth++
				if depth == 1 {
					current.Reset()
				}
			case "r":
				if depth == 1 {
					runs++
				}
			case "t":
				inText = inRun
			case "tab":
				if inRun {
					current.WriteString("\t")
				}
			case "br", "cr":
				if inRun {
					current.WriteString("\n")
				}
			}
		case xml.EndElement:
			if !isWordElement(t.Name) {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				if depth == 1 && runs > 0 {
					runs--
				}
			case "p":
				if depth == 1 {
					paragraphs = append(paragraphs, current.String())
					runs = 0
				}
				if depth > 0 {
					depth--
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

func parsePPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var slides []*zip.File
	for _, file := range zr.File {
		if strings.HasPrefix(file.Name, "ppt/slides/slide") && strings.HasSuffix(file.Name, ".xml") {
			slides = append(slides, file)
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slideNumber(slides[i].Name) < slideNumber(slides[j].Name) })

	var texts []string
	for _, file := range slides {
		rc, err := file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		if slideText := strings.TrimSpace(extractTextFromXML(string(content))); slideText != "" {
			texts = append(texts, slideText)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

func slideNumber(name string) int {
	var n int
	fmt.Sscanf(strings.TrimPrefix(name, "ppt/slides/slide"), "%d", &n)
	return n
}

func parseXLSX(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

// macro-enabled workbooks and templates go through excelize
func parseExcelize(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}
