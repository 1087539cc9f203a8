// Package normalize turns raw scraped fields into canonical values: a
// cleaned display name and an integer price in minor units of the reference
// currency. A Normalizer is immutable after New and safe for concurrent use.
package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"catalog/internal/config"
	"catalog/internal/record"
)

// Normalizer applies one Normalize configuration to raw records.
type Normalizer struct {
	names      nameCleaner
	reference  string
	rates      map[string]decimal.Decimal
	defaultCur string
	locale     string

	policy         string
	hasMin, hasMax bool
	minCents       int64
	maxCents       int64
	rescaleFactor  decimal.Decimal
}

// New builds a Normalizer. Currency codes are upper-cased; the reference
// currency always converts at rate 1.
func New(cfg config.Normalize) (*Normalizer, error) {
	ref := strings.ToUpper(strings.TrimSpace(cfg.ReferenceCurrency))
	if ref == "" {
		return nil, fmt.Errorf("normalize: reference currency is required")
	}
	n := &Normalizer{
		names:      newNameCleaner(cfg.Punctuation, cfg.StripMarkup),
		reference:  ref,
		rates:      make(map[string]decimal.Decimal, len(cfg.CurrencyRates)+1),
		defaultCur: strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency)),
		locale:     cfg.DecimalLocale,
		policy:     cfg.ScaleErrorPolicy,
	}
	for code, rate := range cfg.CurrencyRates {
		if !rate.IsPositive() {
			return nil, fmt.Errorf("normalize: rate for %s must be > 0", code)
		}
		n.rates[strings.ToUpper(code)] = rate
	}
	n.rates[ref] = decimal.NewFromInt(1)

	if n.defaultCur != "" {
		if _, ok := n.rates[n.defaultCur]; !ok {
			return nil, fmt.Errorf("normalize: no rate for default currency %s", n.defaultCur)
		}
	}
	if n.policy == "" {
		n.policy = config.PolicyReject
	}
	if cfg.MinPrice.Valid {
		c, ok := toCents(cfg.MinPrice.Decimal, decimal.NewFromInt(1))
		if !ok {
			return nil, fmt.Errorf("normalize: min_price %s is out of range", cfg.MinPrice.Decimal)
		}
		n.hasMin, n.minCents = true, c
	}
	if cfg.MaxPrice.Valid {
		c, ok := toCents(cfg.MaxPrice.Decimal, decimal.NewFromInt(1))
		if !ok {
			return nil, fmt.Errorf("normalize: max_price %s is out of range", cfg.MaxPrice.Decimal)
		}
		n.hasMax, n.maxCents = true, c
	}
	if n.policy == config.PolicyRescale {
		if !n.hasMax {
			return nil, fmt.Errorf("normalize: rescale policy requires max_price")
		}
		f := cfg.RescaleFactor
		if f <= 1 {
			f = 100
		}
		n.rescaleFactor = decimal.NewFromInt(f)
	}
	return n, nil
}

// Reference returns the ISO code prices are converted into.
func (n *Normalizer) Reference() string { return n.reference }

// CanonicalName returns the cleaned display form of a product name.
func (n *Normalizer) CanonicalName(s string) string { return n.names.clean(s) }

// Normalize validates and converts one raw record. The returned record has no
// fingerprint; rejections are *record.RowError values.
func (n *Normalizer) Normalize(raw record.RawRecord) (record.NormalizedRecord, error) {
	name := n.names.clean(raw.Name)
	if name == "" {
		return record.NormalizedRecord{}, record.Reject(record.ReasonNameEmpty, raw.Line, "")
	}

	cents, flagged, err := n.Price(raw.Price, raw.Currency, raw.Line)
	if err != nil {
		return record.NormalizedRecord{}, err
	}
	return record.NormalizedRecord{
		CanonicalName: name,
		PriceCents:    cents,
		SourceRowID:   raw.SourceRowID,
		Line:          raw.Line,
		Flagged:       flagged,
	}, nil
}

// Price parses a raw price and optional currency column into reference
// currency cents, applying the plausibility range and scale policy.
func (n *Normalizer) Price(text, currencyCol string, line int64) (int64, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false, record.Reject(record.ReasonPriceMissing, line, "")
	}

	numeric, markers, junk := splitPrice(text)
	if junk {
		return 0, false, record.Reject(record.ReasonPriceUnparsable, line, "%q", text)
	}
	amount, ok := parseAmount(numeric, n.locale)
	if !ok {
		return 0, false, record.Reject(record.ReasonPriceUnparsable, line, "%q", text)
	}

	code, err := n.resolveCurrency(currencyCol, markers, line)
	if err != nil {
		return 0, false, err
	}
	rate, ok := n.rates[code]
	if !ok {
		return 0, false, record.Reject(record.ReasonCurrencyUnknown, line, "%s", code)
	}
	cents, ok := toCents(amount, rate)
	if !ok {
		return 0, false, record.Reject(record.ReasonScaleAnomaly, line, "price %q overflows after conversion to %s", text, n.reference)
	}
	return n.applyScale(cents, line)
}

// resolveCurrency picks the currency of a row from the currency column and
// the markers embedded in the price text. Two different currencies between
// them (or within the text) are a conflict.
func (n *Normalizer) resolveCurrency(column string, markers []string, line int64) (string, error) {
	var found []string
	add := func(code string) {
		for _, c := range found {
			if c == code {
				return
			}
		}
		found = append(found, code)
	}

	if col := strings.TrimSpace(column); col != "" {
		code, ok, _ := lookupCurrency(col)
		if !ok {
			return "", record.Reject(record.ReasonCurrencyUnknown, line, "column %q", col)
		}
		add(code)
	}
	for _, m := range markers {
		for _, code := range strings.Split(m, "|") {
			add(code)
		}
	}

	switch len(found) {
	case 0:
		if n.defaultCur == "" {
			return "", record.Reject(record.ReasonCurrencyMissing, line, "")
		}
		return n.defaultCur, nil
	case 1:
		return found[0], nil
	default:
		return "", record.Reject(record.ReasonCurrencyConflict, line, "%s", strings.Join(found, " vs "))
	}
}

// applyScale enforces the plausibility range on a converted price.
func (n *Normalizer) applyScale(cents int64, line int64) (int64, bool, error) {
	below := n.hasMin && cents < n.minCents
	above := n.hasMax && cents > n.maxCents
	if !below && !above {
		return cents, false, nil
	}

	switch n.policy {
	case config.PolicyClamp:
		if below {
			return n.minCents, true, nil
		}
		return n.maxCents, true, nil
	case config.PolicyFlag:
		return cents, true, nil
	case config.PolicyRescale:
		if above {
			scaled := decimal.NewFromInt(cents).Div(n.rescaleFactor).Round(0).IntPart()
			if (!n.hasMin || scaled >= n.minCents) && scaled <= n.maxCents {
				return scaled, true, nil
			}
		}
	}
	return 0, false, record.Reject(record.ReasonScaleAnomaly, line, "price %s outside plausible range", decimal.New(cents, -2).StringFixed(2))
}
