package parser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/docanchor/internal/doctree"
)

// CSVParser renders a CSV file as a table; the first row is the header.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := newDocument(filename)
	if len(records) == 0 {
		return doc, nil
	}

	table := doctree.Element("table")
	thead := doctree.Element("thead")
	header := doctree.Element("tr")
	for _, cell := range records[0] {
		doctree.AppendText(header, "th", cell)
	}
	thead.AppendChild(header)
	table.AppendChild(thead)

	tbody := doctree.Element("tbody")
	for _, row := range records[1:] {
		tr := doctree.Element("tr")
		for _, cell := range row {
			doctree.AppendText(tr, "td", cell)
		}
		tbody.AppendChild(tr)
	}
	table.AppendChild(tbody)
	doc.Body.AppendChild(table)
	return doc, nil
}
