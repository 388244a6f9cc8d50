package etl_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"dataeng/internal/etl"
)

func TestRoundHalfEven(t *testing.T) {
	tests := []struct {
		in     float64
		places int
		want   float64
	}{
		{0.125, 2, 0.12},
		{0.375, 2, 0.38},
		{-0.125, 2, -0.12},
		{2.5, 0, 2},
		{3.5, 0, 4},
		{1234.5, 2, 1234.5},
		{1.7e308, 2, 1.7e308},
		{-1.7e308, 2, -1.7e308},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, etl.RoundHalfEven(tt.in, tt.places), "round(%v, %d)", tt.in, tt.places)
	}
}

func TestApplyTransformers_RoundLeavesTwoDecimals(t *testing.T) {
	in := etl.NewTable(etl.Field{Name: "price", Type: etl.TypeNumber})
	for _, v := range []any{5000.004999, 1.23456, "7.891", nil, math.NaN(), math.Inf(1), int64(42), "n/a"} {
		in.Records = append(in.Records, etl.Record{Data: map[string]any{"price": v}})
	}

	out, err := etl.ApplyTransformers(in, []etl.Transformer{&etl.RoundTransform{Field: "price", Places: 2}})
	require.NoError(t, err)
	require.Equal(t, in.Len(), out.Len())

	got := out.Column("price")
	want := []any{5000.0, 1.23, 7.89, nil, nil, nil, int64(42), nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rounded column mismatch (-want +got):\n%s", diff)
	}
	for _, v := range got {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		require.Equal(t, f, etl.RoundHalfEven(f, 2), "value %v has more than 2 decimals", f)
	}

	// input untouched
	require.Equal(t, 1.23456, in.Records[1].Data["price"])
}

func TestApplyTransformers_HugeValuesStayFinite(t *testing.T) {
	in := etl.NewTable(etl.Field{Name: "usd", Type: etl.TypeNumber})
	in.Records = []etl.Record{
		{Data: map[string]any{"usd": 1.7e308}},
		{Data: map[string]any{"usd": 1e307}},
	}
	currency, err := etl.NewCurrencyTransform("usd", 2, []etl.CurrencyTarget{
		{Code: "GBP", Column: "gbp"},
		{Code: "INR", Column: "inr"},
	}, etl.ExchangeRates{"GBP": 0.8, "INR": 82.95})
	require.NoError(t, err)

	out, err := etl.ApplyTransformers(in, []etl.Transformer{
		&etl.RoundTransform{Field: "usd", Places: 2},
		currency,
	})
	require.NoError(t, err)

	require.Equal(t, 1.7e308, out.Records[0].Data["usd"])
	require.Equal(t, 1.7e308*0.8, out.Records[0].Data["gbp"])
	require.Nil(t, out.Records[0].Data["inr"], "product overflows")
	require.Equal(t, 1e307*0.8, out.Records[1].Data["gbp"])
	for _, rec := range out.Records {
		for col, v := range rec.Data {
			if f, ok := v.(float64); ok {
				require.False(t, math.IsInf(f, 0), "%s is infinite", col)
			}
		}
	}
}

func TestApplyTransformers_NumericThenCurrency(t *testing.T) {
	in := etl.NewTable(etl.Field{Name: "Name", Type: etl.TypeText}, etl.Field{Name: "MC_USD_Billion", Type: etl.TypeText})
	in.Records = []etl.Record{
		{Data: map[string]any{"Name": "JPMorgan Chase", "MC_USD_Billion": "432.92"}},
		{Data: map[string]any{"Name": "Big Bank", "MC_USD_Billion": "1,234.5"}},
	}
	rates := etl.ExchangeRates{"GBP": 0.8, "EUR": 0.93, "INR": 82.95}
	currency, err := etl.NewCurrencyTransform("MC_USD_Billion", 2, []etl.CurrencyTarget{
		{Code: "GBP", Column: "MC_GBP_Billion"},
		{Code: "EUR", Column: "MC_EUR_Billion"},
		{Code: "INR", Column: "MC_INR_Billion"},
	}, rates)
	require.NoError(t, err)

	out, err := etl.ApplyTransformers(in, []etl.Transformer{
		&etl.NumericTransform{Field: "MC_USD_Billion", Strip: ","},
		currency,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"Name", "MC_USD_Billion", "MC_GBP_Billion", "MC_EUR_Billion", "MC_INR_Billion"}, out.Schema.FieldNames())
	require.Equal(t, etl.TypeNumber, out.Schema.Fields[1].Type)
	require.Equal(t, 1234.5, out.Records[1].Data["MC_USD_Billion"])
	require.Equal(t, 987.6, out.Records[1].Data["MC_GBP_Billion"])
	require.Equal(t, 346.34, out.Records[0].Data["MC_GBP_Billion"])
}

func TestNewCurrencyTransform_MissingRate(t *testing.T) {
	_, err := etl.NewCurrencyTransform("usd", 2, []etl.CurrencyTarget{{Code: "JPY", Column: "jpy"}}, etl.ExchangeRates{"EUR": 0.93})
	require.Error(t, err)
	require.True(t, errors.Is(err, etl.ErrRateKeyMissing))
}

func TestRenameTransform(t *testing.T) {
	in := etl.NewTable(etl.Field{Name: "a", Type: etl.TypeText}, etl.Field{Name: "b", Type: etl.TypeInteger})
	in.Records = []etl.Record{{Data: map[string]any{"a": "x", "b": int64(1)}}}

	out, err := etl.ApplyTransformers(in, []etl.Transformer{&etl.RenameTransform{Mapping: map[string]string{"a": "name"}}})
	require.NoError(t, err)
	require.Equal(t, []string{"name", "b"}, out.Schema.FieldNames())
	require.Equal(t, map[string]any{"name": "x", "b": int64(1)}, out.Records[0].Data)
}

func TestBuildTransformers_Errors(t *testing.T) {
	tests := []struct {
		name    string
		configs []etl.TransformConfig
		rates   etl.ExchangeRates
		is      error
	}{
		{name: "unknown type", configs: []etl.TransformConfig{{Type: "explode"}}},
		{name: "round without field", configs: []etl.TransformConfig{{Type: "round", Config: map[string]any{}}}},
		{
			name: "currency without rates",
			configs: []etl.TransformConfig{{Type: "currency", Config: map[string]any{
				"base": "usd", "targets": map[string]any{"EUR": "eur"},
			}}},
		},
		{
			name: "currency missing code",
			configs: []etl.TransformConfig{{Type: "currency", Config: map[string]any{
				"base": "usd", "targets": []any{map[string]any{"code": "JPY", "column": "jpy"}},
			}}},
			rates: etl.ExchangeRates{"EUR": 0.93},
			is:    etl.ErrRateKeyMissing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := etl.BuildTransformers(tt.configs, tt.rates)
			require.Error(t, err)
			if tt.is != nil {
				require.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestBuildTransformers_TargetMapIsOrderedByCode(t *testing.T) {
	ts, err := etl.BuildTransformers([]etl.TransformConfig{{Type: "currency", Config: map[string]any{
		"base":    "usd",
		"places":  float64(3),
		"targets": map[string]any{"INR": "inr", "EUR": "eur", "GBP": "gbp"},
	}}}, etl.ExchangeRates{"EUR": 1, "GBP": 1, "INR": 1})
	require.NoError(t, err)
	require.Len(t, ts, 1)

	ct := ts[0].(*etl.CurrencyTransform)
	require.Equal(t, 3, ct.Places)
	require.Equal(t, []etl.CurrencyTarget{
		{Code: "EUR", Column: "eur"},
		{Code: "GBP", Column: "gbp"},
		{Code: "INR", Column: "inr"},
	}, ct.Targets)
}

func TestRatesFromTable(t *testing.T) {
	tbl := etl.NewTable(etl.Field{Name: "Currency"}, etl.Field{Name: "Rate"})
	tbl.Records = []etl.Record{
		{Data: map[string]any{"Currency": "EUR", "Rate": 0.93}},
		{Data: map[string]any{"Currency": "INR", "Rate": int64(82)}},
	}
	rates, err := etl.RatesFromTable(tbl, "", "")
	require.NoError(t, err)
	require.Equal(t, etl.ExchangeRates{"EUR": 0.93, "INR": 82}, rates)

	tbl.Records = append(tbl.Records, etl.Record{Data: map[string]any{"Currency": "GBP", "Rate": "high"}})
	_, err = etl.RatesFromTable(tbl, "", "")
	require.ErrorIs(t, err, etl.ErrFieldParse)
}
