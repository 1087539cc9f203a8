// Package config provides configuration models and helpers for the catalog
// pipeline.
//
// This file adds a lightweight linter for Pipeline values. It performs static
// checks over a decoded Pipeline and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "normalize.currency_rates.USD"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Err joins every error-severity issue into one error, or returns nil when
// there are none. Warnings are ignored.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	return errors.Join(errs...)
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Callers may decide whether to treat
// warnings as fatal.
//
// Example:
//
//	p, err := config.Load(r)
//	if err != nil { ... }
//	for _, iss := range config.ValidatePipeline(p) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; logs and metrics will be labeled with the default job name",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateNormalize(p.Normalize)...)
	issues = append(issues, validateFingerprint(p.Fingerprint)...)
	issues = append(issues, validateAggregate(p.Aggregate)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, errorf("source.file.path", "file source requires a non-empty path"))
		}
	case "http":
		u := strings.TrimSpace(s.HTTP.URL)
		if u == "" {
			issues = append(issues, errorf("source.http.url", "http source requires a url"))
		} else if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			issues = append(issues, errorf("source.http.url", "url must start with http:// or https://"))
		}
		if s.HTTP.Insecure {
			issues = append(issues, warnf("source.http.insecure", "TLS verification is disabled"))
		}
	case "":
		issues = append(issues, errorf("source.kind", "source.kind must not be empty"))
	default:
		issues = append(issues, errorf("source.kind", "unknown source kind %q (want file or http)", s.Kind))
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue

	switch p.Kind {
	case "csv":
		if p.Options.Bool("has_header", true) {
			hm := p.Options.StringMap("header_map")
			issues = append(issues, validateColumnMap("parser.options.header_map", hm)...)
			if len(hm) == 0 {
				issues = append(issues, warnf("parser.options.header_map",
					"no header_map; the input header must literally contain %q and %q", ColName, ColPrice))
			}
		} else {
			cols := p.Options.StringSlice("columns")
			if len(cols) == 0 {
				issues = append(issues, errorf("parser.options.columns",
					"has_header=false requires a positional columns list"))
				break
			}
			m := make(map[string]string, len(cols))
			for i, c := range cols {
				if c != "" {
					m[fmt.Sprintf("#%d", i)] = c
				}
			}
			issues = append(issues, validateColumnMap("parser.options.columns", m)...)
			issues = append(issues, requireMapped("parser.options.columns", m)...)
		}
		if s := p.Options.String("comma", ","); len([]rune(s)) != 1 {
			issues = append(issues, errorf("parser.options.comma", "comma must be a single character"))
		}
	case "jsonl":
		km := p.Options.StringMap("key_map")
		issues = append(issues, validateColumnMap("parser.options.key_map", km)...)
	case "":
		issues = append(issues, errorf("parser.kind", "parser.kind must not be empty"))
	default:
		issues = append(issues, errorf("parser.kind", "unknown parser kind %q (want csv or jsonl)", p.Kind))
	}
	return issues
}

// validateColumnMap checks that every mapping targets a canonical column and
// that no canonical column is mapped twice.
func validateColumnMap(path string, m map[string]string) []Issue {
	var issues []Issue
	known := map[string]bool{}
	for _, c := range CanonicalColumns {
		known[c] = true
	}
	seen := map[string]string{}
	for src, dst := range m {
		if !known[dst] {
			issues = append(issues, warnf(path+"."+src, "%q is not a pipeline column and will be ignored", dst))
			continue
		}
		if prev, dup := seen[dst]; dup {
			issues = append(issues, errorf(path, "both %q and %q map to %q", prev, src, dst))
		}
		seen[dst] = src
	}
	return issues
}

func requireMapped(path string, m map[string]string) []Issue {
	var issues []Issue
	have := map[string]bool{}
	for _, dst := range m {
		have[dst] = true
	}
	for _, need := range []string{ColName, ColPrice} {
		if !have[need] {
			issues = append(issues, errorf(path, "no source column maps to %q", need))
		}
	}
	return issues
}

func validateNormalize(n Normalize) []Issue {
	var issues []Issue

	if !isCurrencyCode(n.ReferenceCurrency) {
		issues = append(issues, errorf("normalize.reference_currency",
			"reference currency must be a 3-letter code, got %q", n.ReferenceCurrency))
	}
	for code, rate := range n.CurrencyRates {
		path := "normalize.currency_rates." + code
		if !isCurrencyCode(code) {
			issues = append(issues, errorf(path, "currency code must be 3 letters"))
		}
		if !rate.IsPositive() {
			issues = append(issues, errorf(path, "rate must be > 0, got %s", rate))
		}
	}
	if n.DefaultCurrency != "" {
		hasRate := false
		for code := range n.CurrencyRates {
			hasRate = hasRate || strings.EqualFold(code, n.DefaultCurrency)
		}
		if !hasRate && !strings.EqualFold(n.DefaultCurrency, n.ReferenceCurrency) {
			issues = append(issues, errorf("normalize.default_currency",
				"default currency %q has no rate and is not the reference currency", n.DefaultCurrency))
		}
	}
	switch n.DecimalLocale {
	case LocaleAuto, LocaleDot, LocaleComma:
	default:
		issues = append(issues, errorf("normalize.decimal_locale",
			"unknown decimal locale %q (want auto, dot or comma)", n.DecimalLocale))
	}
	switch n.ScaleErrorPolicy {
	case PolicyReject, PolicyClamp, PolicyFlag:
	case PolicyRescale:
		if n.RescaleFactor < 2 {
			issues = append(issues, errorf("normalize.rescale_factor", "rescale factor must be >= 2"))
		}
		if !n.MaxPrice.Valid {
			issues = append(issues, errorf("normalize.max_price", "rescale policy requires max_price"))
		}
	default:
		issues = append(issues, errorf("normalize.scale_error_policy",
			"unknown policy %q (want reject, clamp, flag or rescale)", n.ScaleErrorPolicy))
	}
	if n.MinPrice.Valid && n.MinPrice.Decimal.IsNegative() {
		issues = append(issues, errorf("normalize.min_price", "min_price must not be negative"))
	}
	if n.MinPrice.Valid && n.MaxPrice.Valid && n.MinPrice.Decimal.GreaterThan(n.MaxPrice.Decimal) {
		issues = append(issues, errorf("normalize.max_price", "max_price must be >= min_price"))
	}
	if n.DedupeSourceIDs && n.MaxSourceRowID <= 0 {
		issues = append(issues, errorf("normalize.max_source_row_id",
			"dedupe_source_ids requires a positive max_source_row_id"))
	}
	return issues
}

func validateFingerprint(f Fingerprint) []Issue {
	var issues []Issue
	if f.MinTokenLength < 0 {
		issues = append(issues, errorf("fingerprint.min_token_length", "must be >= 0"))
	}
	if f.MinTokenLength > 4 {
		issues = append(issues, warnf("fingerprint.min_token_length",
			"%d drops most words; names may collapse into very few groups", f.MinTokenLength))
	}
	for from, to := range f.Synonyms {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			issues = append(issues, errorf("fingerprint.synonyms", "synonym %q -> %q has an empty side", from, to))
		}
	}
	return issues
}

func validateAggregate(a Aggregate) []Issue {
	var issues []Issue
	switch a.NamePolicy {
	case NameFirstSeen, NameMostFrequent, NameLongest:
	default:
		issues = append(issues, errorf("aggregate.name_policy",
			"unknown name policy %q (want first_seen, most_frequent or longest)", a.NamePolicy))
	}
	switch a.Sort {
	case SortCountDesc, SortFingerprintAsc, SortPriceAsc, SortNameAsc:
	default:
		issues = append(issues, errorf("aggregate.sort", "unknown sort key %q", a.Sort))
	}
	if a.MaxGroups < 0 {
		issues = append(issues, errorf("aggregate.max_groups", "must be >= 0"))
	}
	if a.MaxGroupBytes < 0 {
		issues = append(issues, errorf("aggregate.max_group_bytes", "must be >= 0"))
	}
	if a.Shards < 0 || a.Shards > 4096 {
		issues = append(issues, errorf("aggregate.shards", "must be between 0 and 4096"))
	}
	if a.MaxGroups == 0 && a.MaxGroupBytes == 0 {
		issues = append(issues, warnf("aggregate",
			"no capacity bound; a catalogue with one group per row grows without limit"))
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	switch s.Kind {
	case "csv":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, errorf("storage.path", "csv sink requires an output path"))
		}
	case "sqlite", "postgres", "mssql", "mysql":
		if strings.TrimSpace(s.DB.DSN) == "" {
			issues = append(issues, errorf("storage.db.dsn", "%s sink requires a dsn", s.Kind))
		}
		if strings.TrimSpace(s.DB.Table) == "" {
			issues = append(issues, errorf("storage.db.table", "%s sink requires a table", s.Kind))
		}
	case "":
		issues = append(issues, errorf("storage.kind", "storage.kind must not be empty"))
	default:
		issues = append(issues, errorf("storage.kind", "unknown storage kind %q", s.Kind))
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue
	check := func(path string, v int) {
		if v < 0 {
			issues = append(issues, errorf(path, "must be >= 0"))
		}
	}
	check("runtime.workers", r.Workers)
	check("runtime.batch_size", r.BatchSize)
	check("runtime.channel_buffer", r.ChannelBuffer)
	check("runtime.timeout_seconds", r.TimeoutSeconds)
	if r.BatchSize > 1_000_000 {
		issues = append(issues, warnf("runtime.batch_size", "very large batches raise peak memory"))
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, warnf("metrics.pushgateway_url", "empty; PUSHGATEWAY_URL or the default will be used"))
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, errorf("metrics.datadog_addr", "datadog backend requires an address"))
		}
	default:
		issues = append(issues, warnf("metrics.backend", "unknown backend %q; metrics disabled", m.Backend))
	}
	return issues
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func errorf(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)}
}

func warnf(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)}
}
