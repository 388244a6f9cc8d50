package etl

import (
	"fmt"
	"sort"
)

// ExchangeRates maps a currency code to the multiplier applied to a base amount.
type ExchangeRates map[string]float64

// Rate returns the multiplier for code. The lookup is exact-key.
func (r ExchangeRates) Rate(code string) (float64, error) {
	rate, ok := r[code]
	if !ok {
		return 0, fmt.Errorf("%w: %q (have %v)", ErrRateKeyMissing, code, r.Codes())
	}
	return rate, nil
}

// Codes returns the known currency codes in sorted order.
func (r ExchangeRates) Codes() []string {
	codes := make([]string, 0, len(r))
	for c := range r {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// RatesConfig points at the table an ExchangeRates map is read from.
type RatesConfig struct {
	Location   string `json:"location"`             // file path or http(s) URL of a csv table
	CodeColumn string `json:"codeColumn,omitempty"` // default "Currency"
	RateColumn string `json:"rateColumn,omitempty"` // default "Rate"
}

// RatesFromTable builds an ExchangeRates map from two columns of a table.
// Rows with a missing code or a non-numeric rate are an error.
func RatesFromTable(t *Table, codeCol, rateCol string) (ExchangeRates, error) {
	if codeCol == "" {
		codeCol = "Currency"
	}
	if rateCol == "" {
		rateCol = "Rate"
	}
	if !t.Schema.Has(codeCol) || !t.Schema.Has(rateCol) {
		return nil, fmt.Errorf("rate table needs columns %q and %q, got %v", codeCol, rateCol, t.Schema.FieldNames())
	}
	rates := make(ExchangeRates, len(t.Records))
	for i, rec := range t.Records {
		code, ok := rec.Data[codeCol].(string)
		if !ok || code == "" {
			return nil, fmt.Errorf("rate row %d: missing currency code", i)
		}
		rate, ok := toFloatSafe(rec.Data[rateCol])
		if !ok {
			return nil, fmt.Errorf("rate row %d (%s): %w: rate %v", i, code, ErrFieldParse, rec.Data[rateCol])
		}
		rates[code] = rate
	}
	return rates, nil
}
