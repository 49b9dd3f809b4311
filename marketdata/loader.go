package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bcdannyboy/rangeaccrual/curve"
	"github.com/bcdannyboy/rangeaccrual/models"
	"github.com/xhhuango/json"
)

// Reader loads market curves. Percent divides every rate by 100.
type Reader struct {
	Percent bool
}

func Load(path string) (Quotes, error) {
	return Reader{}.Load(path)
}

// Load reads a .csv or .json curve file.
func (rd Reader) Load(path string) (Quotes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open curve file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return rd.LoadCSV(f)
	case ".json":
		return rd.LoadJSON(f)
	}
	return nil, fmt.Errorf("unsupported curve file %q: %w", path, models.ErrMalformedCurve)
}

// LoadCSV reads maturity,label,rate rows. A header row is skipped, the label
// column may be omitted (maturity,rate) and an empty maturity is taken from a
// tenor label such as 3M or 10Y.
func (rd Reader) LoadCSV(r io.Reader) (Quotes, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out Quotes
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read curve csv: %v: %w", err, models.ErrMalformedCurve)
		}
		if line == 1 && isHeader(rec) {
			continue
		}

		var mat, lbl, rate string
		switch len(rec) {
		case 2:
			mat, rate = rec[0], rec[1]
		case 3:
			mat, lbl, rate = rec[0], rec[1], rec[2]
		default:
			return nil, fmt.Errorf("line %d: expected 2 or 3 fields, got %d: %w", line, len(rec), models.ErrMalformedCurve)
		}

		q, err := rd.quote(strings.TrimSpace(mat), strings.TrimSpace(lbl), strings.TrimSpace(rate))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, q)
	}
	return finish(out)
}

// LoadJSON reads either {"quotes": [...]} or a bare array of quotes.
func (rd Reader) LoadJSON(r io.Reader) (Quotes, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read curve json: %w", err)
	}

	var doc curveDocument
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &doc.Quotes)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal curve json: %v: %w", err, models.ErrMalformedCurve)
	}

	percent := rd.Percent || strings.EqualFold(doc.Unit, "percent")
	out := make(Quotes, 0, len(doc.Quotes))
	for i, jq := range doc.Quotes {
		lbl := jq.Label
		if lbl == "" {
			lbl = jq.Tenor
		}
		var m float64
		if jq.Maturity != nil {
			m = *jq.Maturity
		} else if m, err = ParseTenor(jq.Tenor); err != nil {
			return nil, fmt.Errorf("quote %d: %w", i, err)
		}
		rate := jq.Rate
		if percent {
			rate /= 100
		}
		out = append(out, curve.MarketPoint{Maturity: m, Label: lbl, Rate: rate})
	}
	return finish(out)
}

func (rd Reader) quote(mat, lbl, rate string) (curve.MarketPoint, error) {
	var (
		m   float64
		err error
	)
	if mat == "" {
		m, err = ParseTenor(lbl)
	} else {
		m, err = strconv.ParseFloat(mat, 64)
	}
	if err != nil {
		return curve.MarketPoint{}, fmt.Errorf("maturity %q: %v: %w", mat, err, models.ErrMalformedCurve)
	}

	r, err := strconv.ParseFloat(strings.TrimSuffix(rate, "%"), 64)
	if err != nil {
		return curve.MarketPoint{}, fmt.Errorf("rate %q: %v: %w", rate, err, models.ErrMalformedCurve)
	}
	if rd.Percent || strings.HasSuffix(rate, "%") {
		r /= 100
	}
	return curve.MarketPoint{Maturity: m, Label: lbl, Rate: r}, nil
}

// ParseTenor turns 1W, 3M, 2Y style labels into year fractions.
func ParseTenor(s string) (float64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, fmt.Errorf("tenor %q: %w", s, models.ErrMalformedCurve)
	}
	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("tenor %q: %w", s, models.ErrMalformedCurve)
	}
	switch s[len(s)-1] {
	case 'D':
		return n / 365, nil
	case 'W':
		return n * 7 / 365, nil
	case 'M':
		return n / 12, nil
	case 'Y':
		return n, nil
	}
	return 0, fmt.Errorf("tenor %q: unknown unit: %w", s, models.ErrMalformedCurve)
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	return err != nil && strings.TrimSpace(rec[0]) != ""
}

// finish orders the quotes by maturity and rejects duplicates and non-finite
// values.
func finish(q Quotes) (Quotes, error) {
	if len(q) == 0 {
		return nil, fmt.Errorf("no quotes: %w", models.ErrMalformedCurve)
	}
	sort.SliceStable(q, func(i, j int) bool { return q[i].Maturity < q[j].Maturity })
	for i, p := range q {
		if math.IsNaN(p.Maturity) || math.IsInf(p.Maturity, 0) || p.Maturity <= 0 {
			return nil, fmt.Errorf("quote %q has invalid maturity %g: %w", p.Label, p.Maturity, models.ErrMalformedCurve)
		}
		if math.IsNaN(p.Rate) || math.IsInf(p.Rate, 0) {
			return nil, fmt.Errorf("quote %q has a non-finite rate: %w", p.Label, models.ErrMalformedCurve)
		}
		if i > 0 && q[i-1].Maturity == p.Maturity {
			return nil, fmt.Errorf("duplicate maturity %g: %w", p.Maturity, models.ErrMalformedCurve)
		}
	}
	return q, nil
}
