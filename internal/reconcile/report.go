package reconcile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// WriteJSON writes the full report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV flattens every section into one CSV with a leading section
// column, so the whole run fits a single spreadsheet import.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"section", "subject", "detail", "value", "class"}); err != nil {
		return err
	}
	for _, p := range r.Pricing {
		if err := cw.Write([]string{"pricing", p.Description, p.Issue, p.ItemCode, ""}); err != nil {
			return err
		}
	}
	for _, g := range r.UOMGaps {
		pair := g.RecipeUnit + " -> " + g.VendorUnit
		if err := cw.Write([]string{"uom_gap", pair, g.Missing, strconv.Itoa(g.Count), ""}); err != nil {
			return err
		}
	}
	for _, v := range r.Variances {
		if err := cw.Write([]string{"variance", v.RecipeName,
			"calculated " + v.Calculated.String() + " vs stated " + v.Stated.String(),
			v.Variance.String(), v.Class}); err != nil {
			return err
		}
	}
	for _, m := range r.Margins {
		if err := cw.Write([]string{"margin", m.Name,
			"food cost " + m.FoodCost.String() + " at price " + m.MenuPrice.String(),
			m.FoodCostPct.String(), m.Class}); err != nil {
			return err
		}
	}
	for _, s := range r.Systemic {
		if err := cw.Write([]string{"systemic", s.FailureMode, s.Recommendation,
			strconv.Itoa(len(s.Recipes)), ""}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMarkdown renders a human-readable summary.
func (r *Report) WriteMarkdown(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Reconciliation Report\n\n")
	fmt.Fprintf(&b, "Run `%s` generated %s\n\n", r.RunID, r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "## Vendor Pricing (%d issues)\n\n", len(r.Pricing))
	if len(r.Pricing) > 0 {
		b.WriteString("| Item | Code | Issue |\n|---|---|---|\n")
		for _, p := range r.Pricing {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", p.Description, p.ItemCode, p.Issue)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## UOM Gaps (%d pairs)\n\n", len(r.UOMGaps))
	if len(r.UOMGaps) > 0 {
		b.WriteString("| Recipe Unit | Vendor Unit | Missing | Uses |\n|---|---|---|---|\n")
		for _, g := range r.UOMGaps {
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", g.RecipeUnit, g.VendorUnit, g.Missing, g.Count)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Cost Variance (%d recipes, %s%% accurate)\n\n",
		len(r.Variances), r.AccuracyRate.String())
	if len(r.Variances) > 0 {
		b.WriteString("| Recipe | Calculated | Stated | Variance | Class |\n|---|---|---|---|---|\n")
		for _, v := range r.Variances {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				v.RecipeName, v.Calculated, v.Stated, v.Variance, v.Class)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Margin Health (%d menu items)\n\n", len(r.Margins))
	if len(r.Margins) > 0 {
		b.WriteString("| Menu Item | Price | Food Cost | Pct | Class |\n|---|---|---|---|---|\n")
		for _, m := range r.Margins {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				m.Name, m.MenuPrice, m.FoodCost, m.FoodCostPct, m.Class)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Systemic Issues (%d)\n\n", len(r.Systemic))
	for _, s := range r.Systemic {
		fmt.Fprintf(&b, "- **%s** across %d recipes (%s): %s\n",
			s.FailureMode, len(s.Recipes), strings.Join(s.Recipes, ", "), s.Recommendation)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteBundle writes the JSON, CSV and Markdown renditions into dir,
// named by run id. It returns the written paths.
func (r *Report) WriteBundle(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var paths []string
	write := func(ext string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, "reconciliation_"+r.RunID+ext)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := fn(f); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	if err := write(".json", r.WriteJSON); err != nil {
		return paths, err
	}
	if err := write(".csv", r.WriteCSV); err != nil {
		return paths, err
	}
	if err := write(".md", r.WriteMarkdown); err != nil {
		return paths, err
	}
	return paths, nil
}
