package edgar

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"nport-service/domain"
)

const (
	generalInfoHeader = "NPORT-P: Part A: General Information"
	investmentHeader  = "NPORT-P: Part C: Schedule of Portfolio Investments"
)

// Parser extracts portfolio holdings from a rendered N-PORT document.
// A syntactically valid document with zero investment sections yields an
// empty holdings list, not an error.
type Parser struct{}

func NewParser() Parser {
	return Parser{}
}

func (p Parser) Parse(raw *domain.RawDocument, limit int) (*domain.ParsedDocument, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, errors.WithMessage(err, "parse document")
	}

	parsed := &domain.ParsedDocument{
		SeriesName:      extractSeriesName(document),
		ReportingPeriod: extractReportingPeriod(document),
		Holdings:        []domain.Holding{},
	}

	document.Find("h1").EachWithBreak(func(_ int, header *goquery.Selection) bool {
		if !strings.Contains(header.Text(), investmentHeader) {
			return true
		}
		if limit > 0 && len(parsed.Holdings) >= limit {
			return false
		}
		holding, ok := parseInvestment(header.NextUntil("h1"))
		if ok {
			parsed.Holdings = append(parsed.Holdings, holding)
		}
		return true
	})

	for _, holding := range parsed.Holdings {
		if holding.Value != nil {
			parsed.TotalAssets += *holding.Value
		}
	}

	return parsed, nil
}

func parseInvestment(section *goquery.Selection) (domain.Holding, bool) {
	holding := domain.Holding{Cusip: "N/A"}
	hasValue := false

	if table := firstTableAfterHeader(section, "Item C.1"); table != nil {
		cells := cellTexts(table)
		for i, text := range cells {
			switch {
			case strings.Contains(text, "a. Name of issuer") && i+1 < len(cells):
				holding.Title = cells[i+1]
			case strings.Contains(text, "d. CUSIP") && i+1 < len(cells) && cells[i+1] != "":
				holding.Cusip = cells[i+1]
			}
		}
	}

	if table := firstTableAfterHeader(section, "Item C.2"); table != nil {
		cells := cellTexts(table)
		for i, text := range cells {
			switch {
			case strings.Contains(text, "Balance") && i+1 < len(cells):
				holding.Balance = parseAmount(cells[i+1])
			case strings.Contains(text, "Report values in U.S. dollars") && i+1 < len(cells):
				holding.Value = parseAmount(cells[i+1])
				hasValue = true
			}
		}
	}

	return holding, holding.Title != "" && hasValue
}

func extractSeriesName(document *goquery.Document) string {
	name := ""

	// Part A, Item A.2
	document.Find("h1").EachWithBreak(func(_ int, header *goquery.Selection) bool {
		if !strings.Contains(header.Text(), generalInfoHeader) {
			return true
		}
		table := firstTableAfterHeader(header.NextUntil("h1"), "Item A.2")
		if table == nil {
			return true
		}
		name = labelledCell(table, "a. Name of Series")
		return name == ""
	})
	if name != "" {
		return name
	}

	// Item B.1
	document.Find("h4").EachWithBreak(func(_ int, header *goquery.Selection) bool {
		if !strings.Contains(header.Text(), "Item B.1. Name of series") {
			return true
		}
		table := header.NextUntil("h1").Filter("table").First()
		if table.Length() == 0 {
			return true
		}
		name = labelledCell(table, "a. Name of series")
		return name == ""
	})
	if name != "" {
		return name
	}

	// generic fallback over any labelled cell
	document.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if !strings.Contains(strings.TrimSpace(cell.Text()), "Name of series") {
			return true
		}
		name = strings.TrimSpace(cell.Next().Text())
		return name == ""
	})

	return name
}

func extractReportingPeriod(document *goquery.Document) string {
	period := ""
	document.Find("h1").EachWithBreak(func(_ int, header *goquery.Selection) bool {
		if !strings.Contains(header.Text(), generalInfoHeader) {
			return true
		}
		table := firstTableAfterHeader(header.NextUntil("h1"), "Item A.3. Reporting period")
		if table == nil {
			return true
		}
		period = labelledCell(table, "b. Date as of which information is reported")
		return period == ""
	})
	return period
}

// firstTableAfterHeader returns the first table following an h4 whose text
// contains marker, within one sibling section. An unrelated h4 in between
// resets the search so a missing table never borrows the next item's.
func firstTableAfterHeader(section *goquery.Selection, marker string) *goquery.Selection {
	var table *goquery.Selection
	matched := false
	section.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		switch goquery.NodeName(node) {
		case "h4":
			matched = strings.Contains(node.Text(), marker)
		case "table":
			if matched {
				table = node
				return false
			}
		}
		return true
	})
	return table
}

func labelledCell(table *goquery.Selection, label string) string {
	cells := cellTexts(table)
	for i, text := range cells {
		if strings.Contains(text, label) && i+1 < len(cells) {
			return cells[i+1]
		}
	}
	return ""
}

func cellTexts(table *goquery.Selection) []string {
	return table.Find("td").Map(func(_ int, cell *goquery.Selection) string {
		return strings.TrimSpace(cell.Text())
	})
}

// parseAmount tolerates thousands separators, parenthesized negatives and
// literal infinity/not-a-number tokens; anything non-finite or unparseable
// becomes nil rather than an invalid number.
func parseAmount(raw string) *float64 {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "$")
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, " ", "")
	if text == "" || strings.EqualFold(text, "N/A") {
		return nil
	}

	negative := false
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		negative = true
		text = text[1 : len(text)-1]
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return nil
	}
	if negative {
		value = -value
	}
	return &value
}
