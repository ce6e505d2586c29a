package export

import (
	"strings"
	"time"
	_ "time/tzdata"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Format is an export file format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat accepts pdf, xlsx and html (case insensitive).
func ParseFormat(raw string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatPDF:
		return FormatPDF, true
	case FormatXLSX:
		return FormatXLSX, true
	case FormatHTML:
		return FormatHTML, true
	default:
		return "", false
	}
}

const (
	// DefaultFilenameStem replaces titles that sanitize to nothing.
	DefaultFilenameStem = "report"
	filenameTimeLayout  = "2006-01-02_15-04-05"
	maxStemRunes        = 80
)

// FilenameLocation is the single zone used for filename timestamps.
var FilenameLocation = mustLoadLocation("Asia/Jerusalem")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// MakeSafeFilename is SafeFilename at the current time.
func MakeSafeFilename(title string, format Format) string {
	return SafeFilename(title, format, time.Now())
}

// SafeFilename returns "<stem>_<YYYY-MM-DD_HH-MM-SS>.<ext>". The stem is
// title without path separators, reserved punctuation or control characters,
// with whitespace runs collapsed to '_'.
func SafeFilename(title string, format Format, at time.Time) string {
	stem := sanitizeStem(title)
	if stem == "" {
		stem = DefaultFilenameStem
	}
	ext := strings.Trim(sanitizeStem(string(format)), "_")
	if ext == "" {
		ext = "bin"
	}
	return stem + "_" + at.In(FilenameLocation).Format(filenameTimeLayout) + "." + strings.ToLower(ext)
}

func isIllegalFilenameRune(r rune) bool {
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}

func sanitizeStem(value string) string {
	value = norm.NFC.String(value)
	var b strings.Builder
	pendingSpace := false
	count := 0
	for _, r := range value {
		if count >= maxStemRunes {
			break
		}
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if isIllegalFilenameRune(r) {
			continue
		}
		if pendingSpace && b.Len() > 0 {
			if count+2 > maxStemRunes {
				break
			}
			b.WriteByte('_')
			count++
		}
		pendingSpace = false
		b.WriteRune(r)
		count++
	}
	return strings.Trim(b.String(), "._-")
}
