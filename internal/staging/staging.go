// Package staging implements the ingestion layer: every inbound row is
// cleaned, flagged and inserted with enough context to be reviewed or
// replayed. Rows are never rejected outright; ambiguous ones are routed
// to human review before promotion.
package staging

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"

	"platecost/internal/config"
	"platecost/internal/models"
	"platecost/internal/uom"
)

// Record is one source row keyed by source header name. The byte-level CSV
// or PDF parsing happens outside the core; loaders only see field records.
type Record map[string]string

// BatchSummary reports what happened to one staged batch.
type BatchSummary struct {
	BatchID              string `json:"batch_id"`
	SourceFile           string `json:"source_file"`
	TotalRows            int    `json:"total_rows"`
	Loaded               int    `json:"loaded"`
	NeedsReview          int    `json:"needs_review"`
	Duplicates           int    `json:"duplicates"`
	ExcludedNoProduct    int    `json:"excluded_no_product"`
	ExcludedOldPurchases int    `json:"excluded_old_purchases"`
	Errors               []string `json:"errors,omitempty"`
}

// Loader stages inventory and recipe data. The store handle is injected;
// nothing here reaches for globals.
type Loader struct {
	db        *gorm.DB
	engine    *uom.Engine
	cfg       *config.Config
	headerMap config.HeaderMap
	now       func() time.Time
}

// NewLoader wires a staging loader. When the config names no header-map
// file, the default inventory layout applies.
func NewLoader(db *gorm.DB, engine *uom.Engine, cfg *config.Config) (*Loader, error) {
	hm := config.DefaultInventoryHeaderMap()
	if cfg.HeaderMapFile != "" {
		loaded, err := config.LoadHeaderMap(cfg.HeaderMapFile)
		if err != nil {
			return nil, err
		}
		hm = loaded
	}
	return &Loader{db: db, engine: engine, cfg: cfg, headerMap: hm, now: time.Now}, nil
}

// batchID builds ids of the form SCOPE_YYYYMMDD_HHMMSS.
func (l *Loader) batchID(scope string) string {
	return fmt.Sprintf("%s_%s", scope, l.now().Format("20060102_150405"))
}

// businessHash builds the duplicate-detection hash over a business key.
func businessHash(parts ...string) string {
	lowered := make([]string, len(parts))
	for i, p := range parts {
		lowered[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := md5.Sum([]byte(strings.Join(lowered, "|")))
	return hex.EncodeToString(sum[:])
}

var dateFormats = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1/2/06",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// cleanMoney strips currency punctuation and parses a decimal. The raw
// value is always preserved by the caller; the flag records how cleaning
// altered meaning.
func cleanMoney(raw string) (decimal.NullDecimal, string) {
	v := strings.TrimSpace(strings.Trim(raw, `"`))
	if v == "" {
		return decimal.NullDecimal{}, models.FlagEmpty
	}
	v = strings.ReplaceAll(v, "$", "")
	v = strings.ReplaceAll(v, ",", "")
	dec, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, models.FlagParseError
	}
	return decimal.NullDecimal{Decimal: dec, Valid: true}, ""
}

// cleanNumeric parses a plain decimal field.
func cleanNumeric(raw string) (decimal.NullDecimal, string) {
	v := strings.TrimSpace(strings.Trim(raw, `"`))
	if v == "" {
		return decimal.NullDecimal{}, models.FlagEmpty
	}
	dec, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, models.FlagParseError
	}
	return decimal.NullDecimal{Decimal: dec, Valid: true}, ""
}

// cleanPercentage parses a percentage field, auto-correcting values that
// are off by a factor of 100 (surface value above 1000) and flagging
// merely suspicious ones for review.
func cleanPercentage(raw string) (decimal.NullDecimal, string) {
	dec, flag := cleanNumeric(raw)
	if !dec.Valid {
		return dec, flag
	}
	if dec.Decimal.GreaterThan(decimal.NewFromInt(1000)) {
		corrected := dec.Decimal.Div(decimal.NewFromInt(100))
		return decimal.NullDecimal{Decimal: corrected, Valid: true}, models.FlagPctAutoCorrected
	}
	if dec.Decimal.GreaterThan(decimal.NewFromInt(100)) {
		return dec, models.FlagHighPercentage
	}
	return dec, ""
}

// cleanDate tries the formats seen in vendor exports.
func cleanDate(raw string) (*time.Time, string) {
	v := strings.TrimSpace(strings.Trim(raw, `"`))
	if v == "" {
		return nil, models.FlagEmpty
	}
	for _, layout := range dateFormats {
		if ts, err := time.Parse(layout, v); err == nil {
			return &ts, ""
		}
	}
	return nil, models.FlagInvalidDate
}

func cleanString(raw string) string {
	return strings.TrimSpace(strings.Trim(raw, `"`))
}
