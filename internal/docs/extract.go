package docs

import "strings"

// Document is the provider's structured document format, reduced to the
// pieces text extraction needs.
type Document struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Body       Body   `json:"body"`
}

type Body struct {
	Content []StructuralElement `json:"content"`
}

type StructuralElement struct {
	Paragraph *Paragraph `json:"paragraph,omitempty"`
	Table     *Table     `json:"table,omitempty"`
}

type Paragraph struct {
	Elements []ParagraphElement `json:"elements"`
}

type ParagraphElement struct {
	TextRun *TextRun `json:"textRun,omitempty"`
}

type TextRun struct {
	Content string `json:"content"`
}

type Table struct {
	TableRows []TableRow `json:"tableRows"`
}

type TableRow struct {
	TableCells []TableCell `json:"tableCells"`
}

type TableCell struct {
	Content []StructuralElement `json:"content"`
}

// ExtractText flattens a structured document into plain text. Paragraphs are
// separated by blank lines; table rows become one line with cells joined by
// " | ". Unrecognized structural elements are skipped.
func ExtractText(doc Document) string {
	var blocks []string
	for _, elem := range doc.Body.Content {
		if block := extractElement(elem); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func extractElement(elem StructuralElement) string {
	switch {
	case elem.Paragraph != nil:
		return extractParagraph(elem.Paragraph)
	case elem.Table != nil:
		return extractTable(elem.Table)
	default:
		return ""
	}
}

func extractParagraph(p *Paragraph) string {
	var sb strings.Builder
	for _, pe := range p.Elements {
		if pe.TextRun != nil {
			sb.WriteString(pe.TextRun.Content)
		}
	}
	return strings.TrimSpace(sb.String())
}

func extractTable(t *Table) string {
	var rows []string
	for _, row := range t.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, elem := range cell.Content {
				if text := extractElement(elem); text != "" {
					parts = append(parts, text)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}
