// Package classify assigns a document type to recognized text and pulls
// out common entities. Classification is keyword based: OCR output from
// fax scans is too noisy for anything fancier to pay off, and the intake
// categories are few and well separated.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document types, most specific first. Matching stops at the first type
// whose keywords score highest; Other is the fallback.
const (
	TypeReferral       = "referral"
	TypeOrder          = "order"
	TypeProgressNote   = "progress_note"
	TypeCorrespondence = "correspondence"
	TypeOther          = "other"
)

// Result is one classification with supporting evidence.
type Result struct {
	Type    string
	Matches []string
	Dates   []string
	Phones  []string
	Amounts []string
}

var keywords = map[string][]string{
	TypeReferral: {
		"referral", "referred to", "referring provider", "consult request",
	},
	TypeOrder: {
		"order", "lab order", "imaging order", "prescription", "rx",
		"invoice", "receipt", "purchase order",
	},
	TypeProgressNote: {
		"progress note", "assessment", "plan", "chief complaint",
		"history of present illness", "follow up", "report",
	},
	TypeCorrespondence: {
		"dear", "sincerely", "regards", "to whom it may concern",
		"thank you for",
	},
}

var (
	dateRe   = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b|\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4}\b`)
	phoneRe  = regexp.MustCompile(`\(?\d{3}\)?[ \-.]?\d{3}[\-.]\d{4}\b`)
	amountRe = regexp.MustCompile(`\$\s?\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)
)

// Classify scores the text against the keyword sets and extracts dates,
// phone numbers and dollar amounts. Empty or unmatchable text comes back
// as Other.
func Classify(text string) Result {
	normalized := Normalize(text)

	res := Result{
		Type:    TypeOther,
		Dates:   dateRe.FindAllString(normalized, -1),
		Phones:  phoneRe.FindAllString(text, -1),
		Amounts: amountRe.FindAllString(text, -1),
	}
	if normalized == "" {
		return res
	}

	bestScore := 0
	for _, docType := range []string{TypeReferral, TypeOrder, TypeProgressNote, TypeCorrespondence} {
		score := 0
		var matches []string
		for _, kw := range keywords[docType] {
			if n := strings.Count(normalized, kw); n > 0 {
				score += n * len(strings.Fields(kw))
				matches = append(matches, kw)
			}
		}
		if score > bestScore {
			bestScore = score
			res.Type = docType
			res.Matches = matches
		}
	}
	return res
}

var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize lowercases the text, strips diacritics and collapses
// whitespace so keyword matching survives OCR artifacts.
func Normalize(text string) string {
	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		stripped = text
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}
