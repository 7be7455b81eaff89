package capture

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Format is the output encoding of a capture.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
)

// Extension is the file extension written for the format.
func (f Format) Extension() string { return string(f) }

func (f Format) valid() bool {
	return f == FormatPNG || f == FormatJPEG || f == FormatPDF
}

// ValidationError is returned for requests rejected before any browser work.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Request is the body of POST /api/screenshot.
type Request struct {
	URL          string    `json:"url"`
	DeviceType   string    `json:"deviceType,omitempty"`
	CustomWidth  LooseInt  `json:"customWidth,omitempty"`
	CustomHeight LooseInt  `json:"customHeight,omitempty"`
	Delay        LooseInt  `json:"delay,omitempty"`
	Format       string    `json:"format,omitempty"`
	FullPage     LooseBool `json:"fullPage,omitempty"`
}

// Validate trims the URL, lower-cases the format (png when empty) and
// validates both.
func (r *Request) Validate() error {
	r.URL = strings.TrimSpace(r.URL)
	if r.URL == "" {
		return &ValidationError{Message: "URL required"}
	}

	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "" {
		r.Format = string(FormatPNG)
	}
	if !Format(r.Format).valid() {
		return &ValidationError{Message: "Invalid format. Use png, jpeg, or pdf."}
	}
	return nil
}

// DelayDuration resolves the post-navigation wait. Missing or unparseable values
// use def; the result is clamped to [0, limit].
func (r Request) DelayDuration(def, limit time.Duration) time.Duration {
	d := def
	if r.Delay.Valid {
		d = time.Duration(r.Delay.Value) * time.Second
	}
	if d < 0 {
		d = 0
	}
	if d > limit {
		d = limit
	}
	return d
}

// NormalizeURL prefixes http:// when raw carries no http or https scheme.
func NormalizeURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "http://" + raw
}

// LooseInt accepts a JSON number or a string with a leading integer ("12",
// "12px", " -3"). Anything else decodes as not Valid instead of failing the request.
type LooseInt struct {
	Value int
	Valid bool
}

// Int returns the value, or 0 when not valid.
func (i LooseInt) Int() int {
	if !i.Valid {
		return 0
	}
	return i.Value
}

func (i *LooseInt) UnmarshalJSON(data []byte) error {
	*i = LooseInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		i.Value, i.Valid = leadingInt(s)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		f = math.Trunc(f)
		if f > math.MaxInt32 || f < math.MinInt32 {
			return nil
		}
		i.Value, i.Valid = int(f), true
	}
	return nil
}

func (i LooseInt) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(i.Value)), nil
}

// leadingInt parses an optional sign followed by digits after leading whitespace.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits || end-digits > 9 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// LooseBool is true only for JSON true or the string "true".
type LooseBool bool

func (b *LooseBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*b = LooseBool(bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte(`"true"`)))
	return nil
}
