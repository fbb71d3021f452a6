package fees

import (
	"net/url"

	"github.com/1etu/easyupoo/internal/platform"
)

// Agent is one purchasing/forwarding service with its markup and link
// scheme.
type Agent struct {
	ID         string
	Multiplier float64 // 0 falls through to DefaultMultiplier
	Links      LinkBuilder
}

// LinkRef carries everything a link builder may need about the upstream
// product.
type LinkRef struct {
	Platform    platform.ID
	ProductID   string
	UpstreamURL string
}

// LinkBuilder builds an agent's purchase link for an upstream product.
// The capability is selected per agent at registry load time: agents with no
// special URL scheme use the generic query-append rule, agents with one
// implement it explicitly.
type LinkBuilder interface {
	AgentLink(ref LinkRef) string
}

// queryAppendLink is the generic rule: the upstream URL escaped into a
// query parameter.
type queryAppendLink struct {
	base string // includes the trailing "?url=" or equivalent
}

func (b queryAppendLink) AgentLink(ref LinkRef) string {
	return b.base + url.QueryEscape(ref.UpstreamURL)
}

// cssbuyLink implements cssbuy's path-encoded scheme, which embeds the
// platform and product ID instead of the raw URL.
type cssbuyLink struct{}

func (cssbuyLink) AgentLink(ref LinkRef) string {
	switch ref.Platform {
	case platform.Weidian:
		return "https://www.cssbuy.com/item-micro-" + ref.ProductID + ".html"
	case platform.Ali1688:
		return "https://www.cssbuy.com/item-1688-" + ref.ProductID + ".html"
	default:
		return "https://www.cssbuy.com/item-" + ref.ProductID + ".html"
	}
}

func defaultAgents() map[string]Agent {
	return map[string]Agent{
		"superbuy": {
			ID:         "superbuy",
			Multiplier: 1.0238,
			Links:      queryAppendLink{base: "https://www.superbuy.com/en/page/buy/?url="},
		},
		"cssbuy": {
			ID:         "cssbuy",
			Multiplier: 1.02,
			Links:      cssbuyLink{},
		},
		"wegobuy": {
			ID:    "wegobuy",
			Links: queryAppendLink{base: "https://www.wegobuy.com/en/page/buy/?from=search-input&url="},
		},
		"pandabuy": {
			ID:    "pandabuy",
			Links: queryAppendLink{base: "https://www.pandabuy.com/product?url="},
		},
	}
}
