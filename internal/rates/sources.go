package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/1etu/easyupoo/internal/fetch"
)

// HTTPSource pulls a conversion table from one JSON endpoint through the
// restricted fetch client.
type HTTPSource struct {
	name   string
	url    string
	client *fetch.Client
	parse  func(body []byte) (map[string]float64, error)
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) Fetch(ctx context.Context) (map[string]float64, error) {
	res := s.client.Fetch(ctx, s.url)
	if !res.Success {
		return nil, errors.New(res.Error)
	}
	return s.parse(res.Data)
}

// DefaultSources returns the ordered source list: each is tried in sequence
// and the first parseable table wins.
func DefaultSources(client *fetch.Client) []Source {
	return []Source{
		&HTTPSource{
			name:   "open-er-api",
			url:    "https://open.er-api.com/v6/latest/" + BaseCurrency,
			client: client,
			parse:  parseERAPI,
		},
		&HTTPSource{
			name:   "frankfurter",
			url:    "https://api.frankfurter.app/latest?base=" + BaseCurrency,
			client: client,
			parse:  parseFrankfurter,
		},
	}
}

func parseERAPI(body []byte) (map[string]float64, error) {
	var payload struct {
		Result string             `json:"result"`
		Rates  map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse rates body: %w", err)
	}
	if payload.Result != "success" {
		return nil, fmt.Errorf("rates endpoint result %q", payload.Result)
	}
	return payload.Rates, nil
}

func parseFrankfurter(body []byte) (map[string]float64, error) {
	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse rates body: %w", err)
	}
	return payload.Rates, nil
}
