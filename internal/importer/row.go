package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/catdadcode/pdk-data-importer/internal/directory"
)

// customPrefix marks caller-defined metadata columns, e.g. "custom.badge".
const customPrefix = "custom."

// Row is one decoded record from an uploaded file: the desired directory
// state for one person. The fixed fields cover the core schema; Extra
// carries every unrecognized column, including the open-ended custom.*
// metadata extensions. Rows are immutable inputs with no identity beyond
// their position in the file.
type Row struct {
	PersonID   string
	First      string
	Last       string
	Cards      string
	Groups     string
	Email      string
	Bluetooth  int
	Mobile     int
	Enabled    bool
	Pin        string
	PinDuress  string
	ActiveDate time.Time
	ExpireDate time.Time

	Extra map[string]string
}

// rowFromRecord builds a Row from one data record using the file's header.
// Records shorter than the header are padded with empty cells; columns not
// in the core schema land in Extra.
func rowFromRecord(header, record []string) Row {
	row := Row{Extra: make(map[string]string)}

	for i, name := range header {
		var value string
		if i < len(record) {
			value = strings.TrimSpace(record[i])
		}

		switch name {
		case "personId":
			row.PersonID = value
		case "first":
			row.First = value
		case "last":
			row.Last = value
		case "cards":
			row.Cards = value
		case "groups":
			row.Groups = value
		case "email":
			row.Email = value
		case "bluetooth":
			row.Bluetooth = parseCount(value)
		case "mobile":
			row.Mobile = parseCount(value)
		case "enabled":
			row.Enabled = parseBoolLike(value)
		case "pin":
			row.Pin = value
		case "pinDuress":
			row.PinDuress = value
		case "activeDate":
			row.ActiveDate = parseDate(value)
		case "expireDate":
			row.ExpireDate = parseDate(value)
		default:
			if name != "" {
				row.Extra[name] = value
			}
		}
	}

	return row
}

// customFields extracts the custom.* columns with the prefix stripped.
func (r Row) customFields() map[string]string {
	out := make(map[string]string)
	for k, v := range r.Extra {
		if strings.HasPrefix(k, customPrefix) {
			out[strings.TrimPrefix(k, customPrefix)] = v
		}
	}
	return out
}

// key returns the identity this row resolves to, used to serialize rows in
// the same file that target the same person: the supplied personId, else
// the lowercased email. Rows with neither are uncoordinated.
func (r Row) key() string {
	if r.PersonID != "" {
		return "id:" + r.PersonID
	}
	if r.Email != "" {
		return "email:" + directory.NormalizeEmail(r.Email)
	}
	return ""
}

// parseCount parses a non-negative credential target count. Empty or
// malformed values mean zero.
func parseCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseBoolLike accepts the usual spreadsheet truthy spellings.
func parseBoolLike(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// dateLayouts are tried in order when parsing activeDate/expireDate cells.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"2006-01-02 15:04:05",
}

// parseDate parses a date cell. Unparseable values yield the zero time;
// date validity is not part of row validation.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// splitList splits a comma-joined cell into trimmed, non-empty values.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
