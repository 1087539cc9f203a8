// Package config defines the JSON-serializable configuration model for the
// catalog pipeline. A pipeline file is decoded once by the CLI and the
// resulting value is passed explicitly to every component; there is no
// process-wide mutable configuration.
//
// Example (trimmed):
//
//	{
//	  "job":       "catalog",
//	  "source":    { "kind": "file", "file": { "path": "dirty_catalogue.csv" } },
//	  "parser":    { "kind": "csv", "options": { "has_header": true,
//	                 "header_map": { "Product_Name": "name", "Price_Raw": "price" } } },
//	  "normalize": { "reference_currency": "EUR", "currency_rates": { "USD": "0.909" } },
//	  "aggregate": { "name_policy": "most_frequent", "sort": "count_desc" },
//	  "storage":   { "kind": "csv", "path": "catalogue_clean.csv" }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// Canonical column names a parser can map source columns onto.
const (
	ColName     = "name"
	ColPrice    = "price"
	ColCurrency = "currency"
	ColID       = "id"
)

// CanonicalColumns lists the columns the pipeline understands, in the order
// parsers materialize them.
var CanonicalColumns = []string{ColName, ColPrice, ColCurrency, ColID}

// Enumerations accepted by the normalizer and aggregator.
const (
	LocaleAuto  = "auto"
	LocaleDot   = "dot"
	LocaleComma = "comma"

	PolicyReject  = "reject"
	PolicyClamp   = "clamp"
	PolicyFlag    = "flag"
	PolicyRescale = "rescale"

	NameFirstSeen    = "first_seen"
	NameMostFrequent = "most_frequent"
	NameLongest      = "longest"

	SortCountDesc      = "count_desc"
	SortFingerprintAsc = "fingerprint_asc"
	SortPriceAsc       = "price_asc"
	SortNameAsc        = "name_asc"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job labels logs and metrics for this run.
	Job string `json:"job"`

	Source      Source      `json:"source"`
	Parser      Parser      `json:"parser"`
	Normalize   Normalize   `json:"normalize"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Aggregate   Aggregate   `json:"aggregate"`
	Storage     Storage     `json:"storage"`
	Runtime     Runtime     `json:"runtime"`
	Metrics     Metrics     `json:"metrics"`
}

// Source identifies where raw rows come from.
type Source struct {
	// Kind is "file" or "http".
	Kind string     `json:"kind"`
	File SourceFile `json:"file"`
	HTTP SourceHTTP `json:"http"`
}

// SourceFile configures the "file" source. Paths ending in ".gz" are
// decompressed on the fly.
type SourceFile struct {
	Path string `json:"path"`
}

// SourceHTTP configures the "http" source.
type SourceHTTP struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Insecure       bool   `json:"insecure"`
}

// Parser selects the input format. Options is interpreted by the parser:
//
//	csv:   has_header (bool), comma (string), lazy_quotes (bool),
//	       header_map (object: source header -> canonical column),
//	       columns (array: canonical column per position, when has_header=false)
//	jsonl: key_map (object: source key -> canonical column)
type Parser struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Normalize configures the field normalizer.
type Normalize struct {
	// ReferenceCurrency is the ISO code every price is converted into.
	ReferenceCurrency string `json:"reference_currency"`

	// CurrencyRates maps an ISO code to the multiplier that converts one unit
	// of it into the reference currency. Values may be JSON numbers or strings.
	CurrencyRates map[string]decimal.Decimal `json:"currency_rates"`

	// DefaultCurrency is assumed when neither the currency column nor the
	// price text names a currency. Empty means such rows are rejected.
	DefaultCurrency string `json:"default_currency"`

	// DecimalLocale is "auto", "dot" (1,234.56) or "comma" (1.234,56).
	DecimalLocale string `json:"decimal_locale"`

	// Punctuation lists the runes replaced by a space in names. Empty means
	// every rune that is not a letter, digit or space.
	Punctuation string `json:"punctuation"`

	// StripMarkup drops <...> tags and decodes HTML entities in names
	// before cleaning.
	StripMarkup bool `json:"strip_markup"`

	// MinPrice/MaxPrice bound plausible prices in the reference currency.
	MinPrice decimal.NullDecimal `json:"min_price"`
	MaxPrice decimal.NullDecimal `json:"max_price"`

	// ScaleErrorPolicy is "reject", "clamp", "flag" or "rescale".
	ScaleErrorPolicy string `json:"scale_error_policy"`

	// RescaleFactor divides prices above MaxPrice under the rescale policy.
	RescaleFactor int64 `json:"rescale_factor"`

	// DedupeSourceIDs rejects rows whose source id was already seen in this
	// run. Ids above MaxSourceRowID are not tracked.
	DedupeSourceIDs bool `json:"dedupe_source_ids"`
	MaxSourceRowID  int  `json:"max_source_row_id"`
}

// Fingerprint configures the grouping key generator. Nil StopWords or
// Synonyms select the built-in tables; empty values disable them.
type Fingerprint struct {
	MinTokenLength  int               `json:"min_token_length"`
	StopWords       []string          `json:"stop_words"`
	Synonyms        map[string]string `json:"synonyms"`
	CollapseRepeats bool              `json:"collapse_repeats"`
}

// Aggregate configures the group table.
type Aggregate struct {
	NamePolicy string `json:"name_policy"`
	Sort       string `json:"sort"`

	// MaxGroups and MaxGroupBytes bound the live group table; zero disables
	// the bound.
	MaxGroups     int64 `json:"max_groups"`
	MaxGroupBytes int64 `json:"max_group_bytes"`

	// Shards is the number of independently locked partitions.
	Shards int `json:"shards"`
}

// Storage selects the sink for the grouped output.
type Storage struct {
	// Kind is "csv", "sqlite", "postgres", "mssql" or "mysql".
	Kind string `json:"kind"`

	// Path is the output file for the csv sink.
	Path string `json:"path"`

	DB DBConfig `json:"db"`

	// Extended adds fingerprint, avg_price, max_price and flagged columns.
	Extended bool `json:"extended"`

	// Options is a free-form bag for sink specific knobs (e.g. csv "comma").
	Options Options `json:"options"`
}

// DBConfig configures SQL sinks.
type DBConfig struct {
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

// Runtime controls concurrency, batching and the wall-clock budget.
type Runtime struct {
	Workers        int `json:"workers"`
	BatchSize      int `json:"batch_size"`
	ChannelBuffer  int `json:"channel_buffer"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "", "none", "pushgateway" or "datadog".
	Backend        string   `json:"backend"`
	PushgatewayURL string   `json:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr"`
	Namespace      string   `json:"namespace"`
	Tags           []string `json:"tags"`
}

// Default returns a pipeline with every scalar default filled in. Decoding a
// file on top of it keeps defaults for omitted fields.
func Default() Pipeline {
	return Pipeline{
		Job:    "catalog",
		Source: Source{Kind: "file"},
		Parser: Parser{Kind: "csv", Options: Options{}},
		Normalize: Normalize{
			ReferenceCurrency: "EUR",
			DecimalLocale:     LocaleAuto,
			MinPrice:          decimal.NewNullDecimal(decimal.New(1, -2)),
			ScaleErrorPolicy:  PolicyReject,
			RescaleFactor:     100,
			MaxSourceRowID:    10_000_000,
		},
		Fingerprint: Fingerprint{MinTokenLength: 2},
		Aggregate: Aggregate{
			NamePolicy: NameFirstSeen,
			Sort:       SortCountDesc,
			Shards:     32,
		},
		Storage: Storage{Kind: "csv", Options: Options{}},
	}
}

// Load decodes a pipeline file on top of Default. Unknown fields are errors
// so that typos in a config do not silently fall back to defaults.
func Load(r io.Reader) (Pipeline, error) {
	p := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}
	return p, nil
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs only minimal coercion and returns the provided default when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the int value for key or def. encoding/json decodes numbers as
// float64, so both float64 and int are accepted.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if s, ok := o[key].(string); ok && len(s) > 0 {
		return []rune(s)[0]
	}
	return def
}

// StringMap returns the string-valued entries of an object value. Missing
// keys yield an empty map.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	switch m := o[key].(type) {
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				res[k] = s
			}
		}
	case map[string]string:
		for k, v := range m {
			res[k] = v
		}
	}
	return res
}

// StringSlice returns the string elements of an array value, or nil.
func (o Options) StringSlice(key string) []string {
	switch vv := o[key].(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	}
	return nil
}

// UnmarshalJSON decodes a missing or null options object into an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
