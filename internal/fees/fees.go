package fees

import (
	"math"
	"strconv"

	"github.com/1etu/easyupoo/internal/rates"
)

// DefaultMultiplier is applied for any agent without an explicit entry, so
// the fee function is total over the agent identifier space.
const DefaultMultiplier = 1.03

// Converter is the slice of the rates provider the engine needs.
type Converter interface {
	Convert(amount float64, from, to string) float64
}

// Engine applies agent markups and currency conversion to resolved prices.
// It is purely presentational: nothing it produces is ever cached, so
// switching agent or currency never invalidates cached resolutions.
type Engine struct {
	agents map[string]Agent
	rates  Converter
}

func NewEngine(conv Converter) *Engine {
	return &Engine{
		agents: defaultAgents(),
		rates:  conv,
	}
}

// ApplyAgentFee multiplies price by the agent's markup, rounded to two
// decimals. Unrecognized agents fall through to the default multiplier;
// there is no error path.
func (e *Engine) ApplyAgentFee(price float64, agentID string) float64 {
	mult := DefaultMultiplier
	if a, ok := e.agents[agentID]; ok && a.Multiplier > 0 {
		mult = a.Multiplier
	}
	return round2(price * mult)
}

// AgentLink builds the purchase link the configured agent uses for an
// upstream product.
func (e *Engine) AgentLink(agentID string, ref LinkRef) (string, bool) {
	a, ok := e.agents[agentID]
	if !ok {
		return "", false
	}
	return a.Links.AgentLink(ref), true
}

// Agents lists the configured agent identifiers.
func (e *Engine) Agents() []string {
	out := make([]string, 0, len(e.agents))
	for id := range e.agents {
		out = append(out, id)
	}
	return out
}

// DisplayPrice runs the fixed composition: upstream currency → base, agent
// fee, base → display currency. The order is load-bearing: the fee applies
// to the base-currency amount, never the converted one.
func (e *Engine) DisplayPrice(price float64, upstreamCurrency, agentID, displayCurrency string) float64 {
	inBase := e.rates.Convert(price, upstreamCurrency, rates.BaseCurrency)
	withFee := e.ApplyAgentFee(inBase, agentID)
	return round2(e.rates.Convert(withFee, rates.BaseCurrency, displayCurrency))
}

// currencySymbols is the fixed display table. Unknown codes degrade to a
// bare number.
var currencySymbols = map[string]string{
	"CNY": "¥",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// Format renders an amount with its currency symbol.
func Format(amount float64, currencyCode string) string {
	return currencySymbols[currencyCode] + strconv.FormatFloat(amount, 'f', 2, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
