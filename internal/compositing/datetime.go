package compositing

import (
	"strconv"
	"strings"
	"time"
)

// Stock date and time formats offered by the editor. An empty format disables
// that half of the stamp.
var (
	DateFormats = []string{"YYYY-MM-DD", "YYYY.MM.DD", "YYYY/MM/DD", "MM/DD/YYYY", "DD/MM/YYYY", "D MMM YYYY", "MMMM D, YYYY", ""}
	TimeFormats = []string{"HH:mm:ss", "HH:mm", "hh:mm:ss A", "hh:mm A", ""}
)

// Longest tokens first so YYYY wins over YY and MMMM over MM.
var dateTokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"YY", "06"},
	{"MM", "01"},
	{"M", "1"},
	{"DD", "02"},
	{"D", "2"},
	{"HH", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"ss", "05"},
	{"A", "PM"},
}

// FormatTime renders t with a token format such as "YYYY-MM-DD" or
// "hh:mm A". Text inside square brackets is copied literally; any other
// character that is not part of a token is copied as is.
func FormatTime(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		switch {
		case strings.HasPrefix(format[i:], "H") && !strings.HasPrefix(format[i:], "HH"):
			b.WriteString(strconv.Itoa(t.Hour()))
			i++
			continue
		case format[i] == 'a':
			b.WriteString(strings.ToLower(t.Format("PM")))
			i++
			continue
		}
		matched := false
		for _, tok := range dateTokens {
			if strings.HasPrefix(format[i:], tok.token) {
				b.WriteString(t.Format(tok.layout))
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}

// Stamp joins the formatted date and time with a single space, omitting
// either half whose format is empty.
func Stamp(t time.Time, dateFormat, timeFormat string) string {
	var parts []string
	if dateFormat != "" {
		parts = append(parts, FormatTime(t, dateFormat))
	}
	if timeFormat != "" {
		parts = append(parts, FormatTime(t, timeFormat))
	}
	return strings.Join(parts, " ")
}
