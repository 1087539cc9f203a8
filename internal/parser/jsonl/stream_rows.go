// Package jsonl streams JSON Lines input into raw catalogue records. Each
// non-blank line holds one JSON object; a line that is not a valid object is
// rejected on its own without stopping the stream.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apex/log"
	"github.com/shopspring/decimal"

	"catalog/internal/config"
	"catalog/internal/record"
)

const (
	defaultMaxLineBytes = 1 << 20
	logEveryN           = 50_000
)

// StreamRecords reads JSON Lines from r and calls emit once per object.
//
// Keys listed in the key_map option are renamed to their canonical column;
// other keys are matched case-insensitively against the canonical names.
// When several keys land on one column, a key_map entry beats a native key
// and ties go to the lexicographically smallest key. String values are used
// as-is; numbers keep their literal text unless written in exponent form,
// which is expanded to plain decimal so 1e3 reads as 1000. max_line_bytes
// bounds a single line (default 1 MiB).
func StreamRecords(
	ctx context.Context,
	r io.Reader,
	opt config.Options,
	emit func(record.RawRecord) error,
	onErr func(line int64, err error),
) error {
	keyMap := opt.StringMap("key_map")
	maxLine := opt.Int("max_line_bytes", defaultMaxLineBytes)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)

	var line, emitted int64
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		line++

		fields, err := decodeLine(b, keyMap)
		if err != nil {
			if onErr != nil {
				onErr(line, record.Reject(record.ReasonMalformedRow, line, "%v", err))
			}
			continue
		}
		raw := record.RawRecord{
			Name:        fields[config.ColName],
			Price:       fields[config.ColPrice],
			Currency:    fields[config.ColCurrency],
			SourceRowID: record.SourceID(fields[config.ColID], line),
			Line:        line,
		}
		if err := emit(raw); err != nil {
			return err
		}
		emitted++
		if emitted%logEveryN == 0 {
			log.WithFields(log.Fields{"line": line, "emitted": emitted}).Info("reader progress")
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("jsonl: line %d exceeds max_line_bytes=%d: %w", line+1, maxLine, err)
		}
		return record.WrapIO("jsonl read", err)
	}
	return nil
}

// decodeLine extracts the canonical fields of one JSON object. Keys that do
// not map to a canonical column are skipped without being decoded.
func decodeLine(b []byte, keyMap map[string]string) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, err
	}
	type source struct {
		key    string
		mapped bool
		value  json.RawMessage
	}
	picked := make(map[string]source, 4)
	for k, v := range obj {
		col, mapped := keyMap[k]
		if !mapped {
			col = strings.ToLower(k)
		}
		switch col {
		case config.ColName, config.ColPrice, config.ColCurrency, config.ColID:
		default:
			continue
		}
		if cur, ok := picked[col]; ok {
			if cur.mapped && !mapped {
				continue
			}
			if cur.mapped == mapped && cur.key < k {
				continue
			}
		}
		picked[col] = source{key: k, mapped: mapped, value: v}
	}

	out := make(map[string]string, len(picked))
	for col, src := range picked {
		s, err := scalarText(src.value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", src.key, err)
		}
		out[col] = s
	}
	return out, nil
}

// maxExponent bounds the exponent expanded by scalarText; larger ones keep
// their literal text and fail price parsing downstream.
const maxExponent = 64

// scalarText renders a JSON scalar as text: strings unquoted, booleans and
// plain numbers literally, exponent-form numbers expanded, null as "".
func scalarText(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return "", nil
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", errors.New("expected a scalar value")
	}
	if bytes.ContainsAny(v, "eE") && v[0] != 't' && v[0] != 'f' {
		d, err := decimal.NewFromString(string(v))
		if err == nil && d.Exponent() <= maxExponent && d.Exponent() >= -maxExponent {
			return d.String(), nil
		}
	}
	return string(v), nil
}
