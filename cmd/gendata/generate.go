package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/apex/log"
)

// Base data for generation.
var (
	brands    = []string{"Apple", "Samsung", "Sony", "Dell", "HP", "Logitech", "Asus", "Lenovo"}
	products  = []string{"iPhone 13", "Galaxy S21", "PlayStation 5", "XPS 13", "Monitor 24", "Mouse MX", "ThinkPad", "MacBook Pro"}
	suffixes  = []string{"Pro", "Max", "Mini", "Ultra", "Edition", "Lite"}
	suppliers = []string{"Amazon", "Cdiscount", "Fnac", "Darty", "Boulanger", "RueDuCommerce"}
)

// Header is the column layout of a generated catalogue.
var Header = []string{"ID_Source", "Product_Name", "Price_Raw", "Supplier_Name", "Date_Scraped"}

const progressEvery = 100_000

// genConfig controls one generated file.
type genConfig struct {
	Rows int
	Seed uint64

	// DupRate is the probability that a row reuses an earlier ID_Source.
	DupRate float64
}

// generator produces dirty catalogue rows from a seeded source, so the same
// seed always yields the same file.
type generator struct {
	rng *rand.Rand
	cfg genConfig
}

func newGenerator(cfg genConfig) *generator {
	return &generator{rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)), cfg: cfg}
}

func (g *generator) pick(xs []string) string { return xs[g.rng.IntN(len(xs))] }

// row returns the i-th data row.
func (g *generator) row(i int) []string {
	name := g.pick(brands) + " " + g.pick(products)
	if g.rng.Float64() > 0.5 {
		name += " " + g.pick(suffixes)
	}
	// Two decimals so every corruption has something to mangle.
	base := math.Round((50+g.rng.Float64()*1950)*100) / 100

	id := i
	if i > 0 && g.rng.Float64() < g.cfg.DupRate {
		id = g.rng.IntN(i)
	}
	day := 1 + g.rng.IntN(28)

	return []string{
		strconv.Itoa(id),
		g.corruptName(name),
		g.corruptPrice(base),
		g.pick(suppliers),
		fmt.Sprintf("2023-10-%02d", day),
	}
}

// corruptPrice makes the price dirty: symbols, locale separators, missing
// values and scale errors.
func (g *generator) corruptPrice(base float64) string {
	p := strconv.FormatFloat(base, 'f', 2, 64)
	switch r := g.rng.Float64(); {
	case r < 0.10:
		return "$" + p
	case r < 0.20:
		return p + " eur"
	case r < 0.30:
		return strings.Replace(p, ".", ",", 1)
	case r < 0.35:
		return ""
	case r < 0.40:
		return strconv.FormatInt(int64(math.Round(base*100)), 10)
	case r < 0.42:
		return "0"
	}
	return p
}

// corruptName changes casing, doubles spaces or drops one character.
func (g *generator) corruptName(name string) string {
	switch r := g.rng.Float64(); {
	case r < 0.3:
		return strings.ToLower(name)
	case r < 0.5:
		return strings.ToUpper(name)
	case r < 0.6:
		return strings.ReplaceAll(name, " ", "  ")
	case r < 0.7:
		if len(name) > 1 {
			i := g.rng.IntN(len(name))
			return name[:i] + name[i+1:]
		}
	}
	return name
}

// generate writes the header and cfg.Rows rows to w.
func generate(w io.Writer, cfg genConfig) error {
	g := newGenerator(cfg)
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i := 0; i < cfg.Rows; i++ {
		if err := cw.Write(g.row(i)); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if (i+1)%progressEvery == 0 {
			log.WithField("rows", i+1).Info("generated")
		}
	}
	cw.Flush()
	return cw.Error()
}
