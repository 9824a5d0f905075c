package calculator

import (
	"math"

	"github.com/macfox/costcalc/internal/catalog"
)

const tokensPerMillion = 1_000_000.0

// SelectModel resolves the selected id. An unknown or empty id is the valid
// "no selection" state.
func SelectModel(cat *catalog.Catalog, id string) (catalog.ModelPrice, bool) {
	return cat.Lookup(id)
}

// Cost returns the estimated USD cost for requests calls of the given size.
// It is zero without a model or when requests < 1, and never negative.
func Cost(inputTokens, outputTokens int64, model catalog.ModelPrice, ok bool, requests int64) float64 {
	return Estimate(inputTokens, outputTokens, model, ok, requests).Total
}

// Notes reports the selected model's notes. An empty string counts as no
// notes, like every other optional catalog field.
func Notes(model catalog.ModelPrice, ok bool) (string, bool) {
	if !ok || model.Notes == "" {
		return "", false
	}
	return model.Notes, true
}

type Breakdown struct {
	Input      float64 `json:"input_usd"`
	Output     float64 `json:"output_usd"`
	PerRequest float64 `json:"per_request_usd"`
	Total      float64 `json:"total_usd"`
}

func Estimate(inputTokens, outputTokens int64, model catalog.ModelPrice, ok bool, requests int64) Breakdown {
	if !ok || requests < 1 {
		return Breakdown{}
	}
	in := (float64(inputTokens) / tokensPerMillion) * model.InputCostPerMillion
	out := (float64(outputTokens) / tokensPerMillion) * model.OutputCostPerMillion
	perRequest := in + out
	return Breakdown{
		Input:      in,
		Output:     out,
		PerRequest: perRequest,
		Total:      math.Max(0, perRequest*float64(requests)),
	}
}

// Cents rounds a USD amount to whole cents.
func Cents(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(math.Round(usd * 100.0))
}
