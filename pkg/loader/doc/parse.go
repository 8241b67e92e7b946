package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// table collects the rows of a docx table so it can be written as a
// markdown table, which the chunker keeps whole.
type table struct {
	rows [][]string
	row  []string
	cell strings.Builder
}

func (t *table) endCell() {
	t.row = append(t.row, strings.Join(strings.Fields(t.cell.String()), " "))
	t.cell.Reset()
}

func (t *table) endRow() {
	if len(t.row) > 0 {
		t.rows = append(t.rows, t.row)
	}
	t.row = nil
}

func (t *table) markdown() string {
	if len(t.rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range t.rows {
		width = max(width, len(r))
	}
	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(cells) {
				cell = strings.ReplaceAll(cells[i], "|", "/")
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteByte('\n')
	}
	writeRow(t.rows[0])
	sb.WriteString("|")
	for i := 0; i < width; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteByte('\n')
	for _, r := range t.rows[1:] {
		writeRow(r)
	}
	return sb.String()
}

func parseDocx(content []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("document.xml not found in docx")
	}
	if docFile.UncompressedSize64 > docXMLMax {
		return nil, fmt.Errorf("document.xml too large: %d bytes", docFile.UncompressedSize64)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, int64(docXMLMax)))

	var sb strings.Builder
	var tbl *table
	inText := false
	delDepth := 0

	// out is where running text goes: the current table cell or the body.
	out := func() *strings.Builder {
		if tbl != nil {
			return &tbl.cell
		}
		return &sb
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "del":
				delDepth++
			case "t":
				inText = true
			case "tab":
				if delDepth == 0 {
					out().WriteByte('\t')
				}
			case "br", "cr":
				if delDepth == 0 {
					out().WriteByte('\n')
				}
			case "noBreakHyphen":
				if delDepth == 0 {
					out().WriteByte('-')
				}
			case "tbl":
				if tbl == nil {
					tbl = &table{}
					if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
						sb.WriteByte('\n')
					}
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if delDepth == 0 {
					out().WriteByte('\n')
				}
			case "tc":
				if tbl != nil {
					tbl.endCell()
				}
			case "tr":
				if tbl != nil {
					tbl.endRow()
				}
			case "tbl":
				if tbl != nil {
					sb.WriteByte('\n')
					sb.WriteString(tbl.markdown())
					sb.WriteByte('\n')
					tbl = nil
				}
			case "del":
				if delDepth > 0 {
					delDepth--
				}
			}

		case xml.CharData:
			if delDepth != 0 || !inText {
				continue
			}
			out().Write(t)
		}
	}

	text := strings.TrimSpace(sb.String())
	text = extraNewlines.ReplaceAllString(text, "\n\n")
	if text != "" {
		text += "\n"
	}
	return []byte(text), nil
}
