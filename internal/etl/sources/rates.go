package sources

import (
	"context"
	"fmt"

	"dataeng/internal/etl"
)

// LoadRates reads an exchange rate csv table from a file or URL.
func LoadRates(ctx context.Context, cfg etl.RatesConfig, env etl.Env) (etl.ExchangeRates, error) {
	if cfg.Location == "" {
		return nil, fmt.Errorf("rates: no location configured")
	}
	data, err := readLocation(ctx, cfg.Location, env)
	if err != nil {
		return nil, fmt.Errorf("rates: %w", err)
	}
	t, err := parseCSV(data, etl.SourceConfig{})
	if err != nil {
		return nil, fmt.Errorf("rates %s: %w", cfg.Location, err)
	}
	return etl.RatesFromTable(t, cfg.CodeColumn, cfg.RateColumn)
}

var _ etl.RatesLoader = LoadRates
