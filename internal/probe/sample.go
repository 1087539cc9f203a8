package probe

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSampleRows caps how many data rows role guessing looks at.
const maxSampleRows = 5000

// Format is the detected input format of a sample.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// detectFormat treats a sample whose first non-space byte opens a JSON
// object as JSON Lines and anything else as delimited text.
func detectFormat(sample []byte) Format {
	s := bytes.TrimSpace(sample)
	s = bytes.TrimPrefix(s, []byte("\uFEFF"))
	if len(s) > 0 && s[0] == '{' {
		return FormatJSONL
	}
	return FormatCSV
}

// cutToLastNewline drops a trailing partial line left by sampling a prefix.
func cutToLastNewline(b []byte) []byte {
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		return b[:i+1]
	}
	return b
}

// guessDelimiter picks the candidate that splits the header line into the
// most fields.
func guessDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// readCSVSample parses CSV data using delim and returns headers and up to a
// capped number of data rows. It is tolerant of trimmed samples and malformed
// lines: parse errors and rows whose width differs from the header are
// skipped.
func readCSVSample(data []byte, delim rune) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var headers []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("probe: sample has no header line")
		}
		if err != nil || len(rec) == 0 {
			continue
		}
		headers = stripUTF8BOM(append([]string(nil), rec...))
		break
	}

	rows := make([][]string, 0, 64)
	want := len(headers)
	for len(rows) < maxSampleRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) != want {
			continue
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}

// readJSONLSample decodes one object per line. Keys become columns in the
// order they first show up (sorted within a line); nested values are kept as
// their JSON text.
func readJSONLSample(data []byte) ([]string, [][]string, error) {
	var (
		headers []string
		index   = map[string]int{}
		objs    []map[string]json.RawMessage
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() && len(objs) < maxSampleRows {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(line, &obj); err != nil {
			continue
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			if _, seen := index[k]; !seen {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			index[k] = len(headers)
			headers = append(headers, k)
		}
		objs = append(objs, obj)
	}
	if len(headers) == 0 {
		return nil, nil, fmt.Errorf("probe: sample has no JSON objects")
	}

	rows := make([][]string, 0, len(objs))
	for _, obj := range objs {
		row := make([]string, len(headers))
		for k, v := range obj {
			row[index[k]] = jsonText(v)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func jsonText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	if string(v) == "null" {
		return ""
	}
	return string(v)
}

// stripUTF8BOM removes a UTF-8 BOM from the first header field if present.
func stripUTF8BOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}
	return headers
}

// column returns the i-th field of every row.
func column(rows [][]string, i int) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if i < len(r) {
			out = append(out, r[i])
		}
	}
	return out
}

// nonEmptyTrimmed returns the non-empty, trimmed values.
func nonEmptyTrimmed(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// share returns the fraction of vals satisfying fn; 0 for no values.
func share(vals []string, fn func(string) bool) float64 {
	if len(vals) == 0 {
		return 0
	}
	n := 0
	for _, v := range vals {
		if fn(v) {
			n++
		}
	}
	return float64(n) / float64(len(vals))
}

// isInt requires a signed base-10 integer that fits in int64.
func isInt(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}

// normalizeFieldName converts arbitrary header text into a lowercase ASCII
// identifier:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. fallback to "col" if empty
func normalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}
