package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"

	"catalog/internal/config"
	"catalog/internal/record"
)

/*
makeCSV builds a CSV document in-memory with the given header and rows.
It uses encoding/csv to ensure proper quoting and escaping.
*/
func makeCSV(delim rune, header []string, rows [][]string) []byte {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	w.Comma = delim
	if header != nil {
		_ = w.Write(header)
	}
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	return b.Bytes()
}

type rejected struct {
	line int64
	err  error
}

// run streams input and collects emitted records and rejects.
func run(t *testing.T, input string, opt config.Options) ([]record.RawRecord, []rejected, error) {
	t.Helper()
	var got []record.RawRecord
	var rej []rejected
	err := StreamRecords(context.Background(), strings.NewReader(input), opt,
		func(r record.RawRecord) error { got = append(got, r); return nil },
		func(line int64, err error) { rej = append(rej, rejected{line, err}) },
	)
	return got, rej, err
}

/*
TestStreamRecords_HeaderMap maps the generator's column names onto the
canonical columns and drops everything else.
*/
func TestStreamRecords_HeaderMap(t *testing.T) {
	in := makeCSV(',', []string{"ID_Source", "Product_Name", "Price_Raw", "Supplier_Name", "Date_Scraped"}, [][]string{
		{"17", " Sony PS5 ", "499,99 €", "Fnac", "2024-01-01"},
		{"x", "Acme Widget", "$10.00", "Amazon", "2024-01-02"},
	})
	opt := config.Options{"header_map": map[string]any{
		"ID_Source": "id", "Product_Name": "name", "Price_Raw": "price",
	}}
	got, rej, err := run(t, string(in), opt)
	if err != nil {
		t.Fatalf("StreamRecords: %v", err)
	}
	if len(rej) != 0 {
		t.Fatalf("unexpected rejects: %+v", rej)
	}
	want := []record.RawRecord{
		{Name: "Sony PS5", Price: "499,99 €", SourceRowID: 17, Line: 1},
		{Name: "Acme Widget", Price: "$10.00", SourceRowID: 2, Line: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v; want %+v", i, got[i], want[i])
		}
	}
}

/*
TestStreamRecords_CanonicalHeadersAndBOM verifies that headers already named
like canonical columns (any case, BOM on the first cell) need no mapping.
*/
func TestStreamRecords_CanonicalHeadersAndBOM(t *testing.T) {
	in := "\uFEFFName;Price;Currency\nWidget;10,00;EUR\n"
	got, _, err := run(t, in, config.Options{"comma": ";"})
	if err != nil {
		t.Fatalf("StreamRecords: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Widget" || got[0].Price != "10,00" || got[0].Currency != "EUR" {
		t.Fatalf("got %+v", got)
	}
}

func TestStreamRecords_Positional(t *testing.T) {
	in := "\uFEFFskip,Widget,5.00\nx,Gadget,7.00\n"
	opt := config.Options{"has_header": false, "columns": []any{"", "name", "price"}}
	got, _, err := run(t, in, opt)
	if err != nil {
		t.Fatalf("StreamRecords: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Widget" || got[1].Price != "7.00" || got[1].Line != 2 {
		t.Fatalf("got %+v", got)
	}
}

/*
TestStreamRecords_MalformedRowIsRejectedNotFatal checks that a row the CSV
reader cannot parse is reported as malformed_row with its line, and that
later rows still flow.
*/
func TestStreamRecords_MalformedRowIsRejectedNotFatal(t *testing.T) {
	in := "name,price\nA,1 EUR\nB,\"2 EUR\"x\nC,3 EUR\n"
	got, rej, err := run(t, in, nil)
	if err != nil {
		t.Fatalf("StreamRecords: %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "C" || got[1].Line != 3 {
		t.Fatalf("got %+v", got)
	}
	if len(rej) != 1 || rej[0].line != 2 {
		t.Fatalf("rejects=%+v; want one at line 2", rej)
	}
	var rerr *record.RowError
	if !errors.As(rej[0].err, &rerr) || rerr.Reason != record.ReasonMalformedRow {
		t.Fatalf("reject err=%v; want malformed_row", rej[0].err)
	}
}

func TestStreamRecords_MissingRequiredColumn(t *testing.T) {
	_, _, err := run(t, "title,cost\nA,1\n", nil)
	if err == nil || !strings.Contains(err.Error(), `no "name" or "price" column`) {
		t.Fatalf("err=%v; want missing column error", err)
	}
}

func TestStreamRecords_EmptyInput(t *testing.T) {
	got, _, err := run(t, "", nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %d records, err=%v", len(got), err)
	}
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n == 0 {
		f.n++
		return copy(p, "name,price\nA,1\n"), nil
	}
	return 0, errors.New("connection reset")
}

func TestStreamRecords_SourceErrorIsIOError(t *testing.T) {
	err := StreamRecords(context.Background(), &failingReader{}, nil,
		func(record.RawRecord) error { return nil }, nil)
	if !errors.Is(err, record.ErrIO) {
		t.Fatalf("err=%v; want ErrIO", err)
	}
}

func TestStreamRecords_EmitErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := StreamRecords(context.Background(), strings.NewReader("name,price\nA,1\nB,2\n"), nil,
		func(record.RawRecord) error { calls++; return stop }, nil)
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestStreamRecords_Cancelled(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,price\n")
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&b, "item %d,%d EUR\n", i, i)
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := StreamRecords(ctx, strings.NewReader(b.String()), nil, func(record.RawRecord) error {
		n++
		if n == 10 {
			cancel()
		}
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v; want context.Canceled", err)
	}
	if n != 10 {
		t.Fatalf("emitted %d rows after cancel; want 10", n)
	}
}
