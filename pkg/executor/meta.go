package executor

import (
	"github.com/shopspring/decimal"

	"github.com/mettice/nodeai/pkg/cost"
	"github.com/mettice/nodeai/pkg/types"
)

// MetaKey is the well-known sub-mapping carrying cost and token metadata in a
// node's output.
const MetaKey = "_meta"

// Meta is the cost metadata extracted from a node output.
type Meta struct {
	Cost     decimal.Decimal
	Tokens   types.TokenUsage
	Provider string
	Model    string
}

// ExtractMeta reads cost, token, provider, and model metadata from the
// output's _meta sub-mapping. Outputs without metadata yield zero cost.
// Negative costs and token counts are clamped to zero.
func ExtractMeta(output map[string]interface{}) Meta {
	meta := Meta{Cost: decimal.Zero}
	if output == nil {
		return meta
	}
	raw, ok := output[MetaKey].(map[string]interface{})
	if !ok {
		return meta
	}

	meta.Cost = decimalValue(raw["cost"]).Round(cost.Scale)
	if meta.Cost.IsNegative() {
		meta.Cost = decimal.Zero
	}

	if tokens, ok := raw["tokens"].(map[string]interface{}); ok {
		meta.Tokens.Input = intValue(tokens["input"])
		meta.Tokens.Output = intValue(tokens["output"])
		meta.Tokens.Total = intValue(tokens["total"])
		if meta.Tokens.Total == 0 {
			meta.Tokens.Total = meta.Tokens.Input + meta.Tokens.Output
		}
	}

	if provider, ok := raw["provider"].(string); ok {
		meta.Provider = provider
	}
	if model, ok := raw["model"].(string); ok {
		meta.Model = model
	}
	return meta
}

// decimalValue coerces a JSON-shaped value into a decimal. Strings preserve
// exactness; floats go through the repeating-decimal-safe constructor.
func decimalValue(v interface{}) decimal.Decimal {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case decimal.Decimal:
		return t
	default:
		return decimal.Zero
	}
}

// intValue coerces a JSON-shaped value into a non-negative int64.
func intValue(v interface{}) int64 {
	var n int64
	switch t := v.(type) {
	case float64:
		n = int64(t)
	case int:
		n = int64(t)
	case int64:
		n = t
	}
	if n < 0 {
		return 0
	}
	return n
}
