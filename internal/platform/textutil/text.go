package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	folder       = cases.Fold()
)

// PlainText strips markup from user-supplied free text (order notes, verification notes, product
// descriptions) and trims surrounding whitespace. Entities are unescaped so stored text stays readable.
func PlainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
}

// FoldKey returns the case-folded, NFC-normalised form used for uniqueness checks on usernames and emails.
func FoldKey(value string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(value)))
}

// SplitName splits a contact person into first and last name on the first space. A single word yields an
// empty last name.
func SplitName(full string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(full), " ")
	return first, strings.TrimSpace(last)
}

// AppendNote joins an existing note and an addition with a newline, skipping empty parts.
func AppendNote(existing, addition string) string {
	addition = strings.TrimSpace(addition)
	switch {
	case addition == "":
		return existing
	case existing == "":
		return addition
	}
	return existing + "\n" + addition
}
