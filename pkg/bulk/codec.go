// Package bulk builds in-memory row batches in the COPY text format and commits them phase by
// phase, one transaction per phase.
package bulk

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Null is the COPY text marker for a NULL column.
const Null = `\N`

var ErrBadEscape = errors.New("bad escape sequence")

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
)

// Escape renders s as a COPY text field.
func Escape(s string) string {
	return escaper.Replace(s)
}

// EncodeRow joins fields with tabs. A nil field is written as \N; other fields are escaped.
func EncodeRow(fields []*string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\t')
		}
		if f == nil {
			b.WriteString(Null)
			continue
		}
		b.WriteString(Escape(*f))
	}
	return b.String()
}

// DecodeRow splits one encoded line (without its trailing newline) back into fields.
func DecodeRow(line string) ([]*string, error) {
	parts := strings.Split(line, "\t")
	out := make([]*string, len(parts))
	for i, p := range parts {
		if p == Null {
			continue
		}
		v, err := unescape(p)
		if err != nil {
			return nil, err
		}
		out[i] = &v
	}
	return out, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			return "", ErrBadEscape
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", ErrBadEscape
		}
	}
	return b.String(), nil
}

// Field helpers used when building rows.

func Str(s string) *string { return &s }

// OptStr maps the empty string to NULL.
func OptStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Int(n int64) *string {
	s := strconv.FormatInt(n, 10)
	return &s
}

// OptInt maps 0 to NULL, for optional foreign keys.
func OptInt(n int64) *string {
	if n == 0 {
		return nil
	}
	return Int(n)
}

func Float(f float64) *string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	return &s
}

func Bool(v bool) *string {
	if v {
		return Str("true")
	}
	return Str("false")
}

func Time(t time.Time) *string {
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
