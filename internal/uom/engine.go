package uom

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"platecost/internal/models"
)

// Engine parses measurement strings, canonicalizes unit tokens and converts
// between compatible units. The unit and alias tables are loaded once at
// startup and treated as read-only afterwards.
type Engine struct {
	units   map[string]UnitDef
	aliases map[string]string

	mu     sync.Mutex
	errors []ETLError
}

// ETLError records a parse failure that was absorbed rather than raised.
// The pipeline is never halted by a single bad row; the surrounding
// component decides whether the row stays usable.
type ETLError struct {
	Timestamp time.Time `json:"timestamp"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	Message   string    `json:"message"`
}

// NewEngine builds an engine from the built-in unit and alias tables.
func NewEngine() *Engine {
	e := &Engine{
		units:   make(map[string]UnitDef),
		aliases: make(map[string]string),
	}
	for _, u := range DefaultUnits() {
		e.units[u.Symbol] = u
	}
	for alias, symbol := range DefaultAliases() {
		e.aliases[normalizeToken(alias)] = symbol
	}
	return e
}

// aliasFile is the on-disk shape of a UOM alias overlay.
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliasFile merges aliases from a YAML file over the built-in set.
// Missing file is a configuration error: the alias map is required for
// ingestion to behave deterministically.
func (e *Engine) LoadAliasFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading uom alias file %s: %w", path, err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parsing uom alias file %s: %w", path, err)
	}
	for alias, symbol := range f.Aliases {
		if _, ok := e.units[symbol]; !ok {
			return fmt.Errorf("alias %q maps to unknown unit %q", alias, symbol)
		}
		e.aliases[normalizeToken(alias)] = symbol
	}
	return nil
}

var multiSymbols = regexp.MustCompile(`[×✕✖⨯]`)
var wsCollapse = regexp.MustCompile(`\s+`)

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ".", "")
	s = wsCollapse.ReplaceAllString(s, " ")
	return s
}

// Canonicalize resolves a surface unit token to its canonical unit. The
// lookup is case-insensitive and tolerant of dots and extra whitespace.
func (e *Engine) Canonicalize(unit string) (UnitDef, bool) {
	tok := normalizeToken(unit)
	if tok == "" {
		return UnitDef{}, false
	}
	if symbol, ok := e.aliases[tok]; ok {
		tok = symbol
	}
	u, ok := e.units[tok]
	return u, ok
}

// Known reports whether the token resolves to a canonical unit.
func (e *Engine) Known(unit string) bool {
	_, ok := e.Canonicalize(unit)
	return ok
}

var (
	rePackMulti  = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*x\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z][a-z .\-]*)$`)
	rePackNoUnit = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*x\s*([0-9]+(?:\.[0-9]+)?)$`)
	reSingle     = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([a-z][a-z .\-]*)$`)
	reNumber     = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)
)

// Parse turns a measurement string into (quantity, canonical unit symbol).
// Multi-pack forms like "12 x 2.5 kg" return the inner per-pack quantity
// (2.5, kg); outer counts are carried separately on the inventory item.
// A bad string never stops the pipeline: it is logged as an ETL error and
// defaults to (1, each).
func (e *Engine) Parse(s string) (decimal.Decimal, string) {
	_, qty, unit := e.ParsePack(s)
	return qty, unit
}

// ParsePack parses a pack-size or measurement string, returning the outer
// pack count (1 when the string has no multiplier), the inner quantity and
// its canonical unit.
func (e *Engine) ParsePack(s string) (outer decimal.Decimal, qty decimal.Decimal, unit string) {
	one := decimal.NewFromInt(1)
	if strings.TrimSpace(s) == "" {
		return one, one, "each"
	}

	norm := strings.ToLower(strings.TrimSpace(s))
	norm = multiSymbols.ReplaceAllString(norm, "x")
	norm = strings.ReplaceAll(norm, ",", "")
	norm = wsCollapse.ReplaceAllString(norm, " ")

	if m := rePackMulti.FindStringSubmatch(norm); m != nil {
		u, ok := e.Canonicalize(m[3])
		if !ok {
			e.logError("pack_size", s, fmt.Sprintf("unknown unit after aliasing: %s", m[3]))
			return one, one, "each"
		}
		return d(m[1]), d(m[2]), u.Symbol
	}

	if rePackNoUnit.MatchString(norm) {
		e.logError("pack_size", s, "pack size missing unit")
		return one, one, "each"
	}

	if m := reSingle.FindStringSubmatch(norm); m != nil {
		u, ok := e.Canonicalize(m[2])
		if !ok {
			e.logError("pack_size", s, fmt.Sprintf("unknown unit after aliasing: %s", m[2]))
			return one, one, "each"
		}
		return one, d(m[1]), u.Symbol
	}

	if reNumber.MatchString(norm) {
		return one, d(norm), "each"
	}

	e.logError("pack_size", s, "unparseable measurement format")
	return one, one, "each"
}

// Format renders a quantity with its canonical unit such that
// Parse(Format(q, u)) == (q, u).
func (e *Engine) Format(q decimal.Decimal, unit string) string {
	return q.String() + " " + unit
}

func (e *Engine) logError(field, value, message string) {
	e.mu.Lock()
	e.errors = append(e.errors, ETLError{
		Timestamp: time.Now(),
		Field:     field,
		Value:     value,
		Message:   message,
	})
	e.mu.Unlock()
	zap.L().Warn("etl parse error",
		zap.String("field", field),
		zap.String("value", value),
		zap.String("message", message),
	)
}

// Errors returns the ETL errors absorbed so far.
func (e *Engine) Errors() []ETLError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ETLError, len(e.errors))
	copy(out, e.errors)
	return out
}

// ClearErrors drops the accumulated ETL error log.
func (e *Engine) ClearErrors() {
	e.mu.Lock()
	e.errors = nil
	e.mu.Unlock()
}

// BaseUnit returns the base unit symbol for the dimension of the given
// canonical unit.
func (e *Engine) BaseUnit(unit string) (string, bool) {
	u, ok := e.Canonicalize(unit)
	if !ok {
		return "", false
	}
	return models.BaseUnitFor(u.Dimension), true
}
