package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-resty/resty/v2"

	"dataeng/internal/etl"
)

// ── Locations ──────────────────────────────────────────────
// A location is either a local file path or an http(s) URL.

var client = resty.New()

func isURL(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// readLocation returns the full content of a file or remote document.
// Anything that prevents reading it is an ErrSourceUnavailable.
func readLocation(ctx context.Context, loc string, env etl.Env) ([]byte, error) {
	if !isURL(loc) {
		data, err := os.ReadFile(loc)
		if err != nil {
			return nil, fmt.Errorf("%w: read file: %w", etl.ErrSourceUnavailable, err)
		}
		return data, nil
	}

	if env.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, env.HTTPTimeout)
		defer cancel()
	}
	res, err := client.R().
		SetContext(ctx).
		Get(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", etl.ErrSourceUnavailable, err)
	}
	if res.IsError() {
		body := res.Body()
		if len(body) > 1024 {
			body = body[:1024]
		}
		return nil, fmt.Errorf("%w: http %d: %s", etl.ErrSourceUnavailable, res.StatusCode(), string(body))
	}
	return res.Body(), nil
}

// expandLocations resolves the configured paths (glob patterns allowed) and
// URL into an ordered list of locations. Matches of one pattern are in lexical
// order; excluded files are skipped.
func expandLocations(cfg etl.SourceConfig, env etl.Env) ([]string, error) {
	excluded := make([]string, 0, len(env.Exclude))
	for _, p := range env.Exclude {
		excluded = append(excluded, absPath(p))
	}

	var locs []string
	for _, pattern := range cfg.Paths {
		if isURL(pattern) {
			locs = append(locs, pattern)
			continue
		}
		if !hasMeta(pattern) {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("%w: %w", etl.ErrSourceUnavailable, err)
			}
			if !slices.Contains(excluded, absPath(pattern)) {
				locs = append(locs, pattern)
			}
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if slices.Contains(excluded, absPath(m)) {
				continue
			}
			locs = append(locs, m)
		}
	}
	if cfg.URL != "" {
		locs = append(locs, cfg.URL)
	}
	return locs, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, `*?[\`)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// inferTypes sets every field's type from the values present in the table.
// Declared non-text types are kept.
func inferTypes(t *etl.Table) {
	for i, f := range t.Schema.Fields {
		if f.Type != "" && f.Type != etl.TypeText {
			continue
		}
		t.Schema.Fields[i].Type = t.ColumnType(f.Name)
	}
}
