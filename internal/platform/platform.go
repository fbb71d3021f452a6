package platform

import (
	"regexp"
	"strconv"
)

// ID names one upstream marketplace the system can source a price from.
type ID string

const (
	Weidian ID = "weidian"
	Taobao  ID = "taobao"
	Ali1688 ID = "1688"
)

// Platform bundles everything marketplace-specific: how a reference to the
// platform looks inside a mirror listing page, how to pull the product
// identifier out of that reference, how to build the secondary lookup URL,
// and how to read a price out of the lookup response.
type Platform struct {
	ID       ID
	Priority int // lower value wins selection

	refPattern    *regexp.Regexp
	idPattern     *regexp.Regexp
	lookupBase    string
	lookupSuffix  string
	pricePatterns []*regexp.Regexp
}

// FindReference scans a fetched listing page for an embedded reference to
// this platform. A page with no match is skipped, not an error.
func (p *Platform) FindReference(body []byte) (string, bool) {
	m := p.refPattern.Find(body)
	if m == nil {
		return "", false
	}
	return string(m), true
}

// ExtractProductID derives the platform-specific product identifier from a
// matched reference. Pure: returns the ID or absent.
func (p *Platform) ExtractProductID(rawURL string) (string, bool) {
	m := p.idPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// LookupURL builds the secondary fetch target for a product ID.
func (p *Platform) LookupURL(productID string) string {
	return p.lookupBase + productID + p.lookupSuffix
}

// ParsePrice reads a price out of a lookup response body, trying each
// pattern in order. Returns ok=false when no pattern yields a number.
func (p *Platform) ParsePrice(body []byte) (float64, bool) {
	for _, pat := range p.pricePatterns {
		m := pat.FindSubmatch(body)
		if len(m) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(string(m[1]), 64)
		if err != nil {
			continue
		}
		return price, true
	}
	return 0, false
}

// Registry holds the configured platforms. Extensible: adding a platform is
// one more entry here, nothing in the pipeline changes.
type Registry struct {
	platforms []*Platform
}

// Default returns the registry of supported upstream platforms.
func Default() *Registry {
	money := []*regexp.Regexp{
		regexp.MustCompile(`"(?:price|sellPrice|offerPrice)"\s*:\s*"?(\d+(?:\.\d+)?)"?`),
		regexp.MustCompile(`[¥￥]\s*(\d+(?:\.\d+)?)`),
	}

	return &Registry{platforms: []*Platform{
		{
			ID:            Weidian,
			Priority:      1,
			refPattern:    regexp.MustCompile(`https?://(?:www\.)?weidian\.com/item\.html\?itemI[dD]=\d+`),
			idPattern:     regexp.MustCompile(`itemI[dD]=(\d+)`),
			lookupBase:    "https://weidian.com/item.html?itemID=",
			pricePatterns: money,
		},
		{
			ID:            Taobao,
			Priority:      2,
			refPattern:    regexp.MustCompile(`https?://item\.taobao\.com/item\.htm\?[^"'\s<>]*\bid=\d+`),
			idPattern:     regexp.MustCompile(`[?&]id=(\d+)`),
			lookupBase:    "https://item.taobao.com/item.htm?id=",
			pricePatterns: money,
		},
		{
			ID:            Ali1688,
			Priority:      3,
			refPattern:    regexp.MustCompile(`https?://detail\.1688\.com/offer/\d+\.html`),
			idPattern:     regexp.MustCompile(`offer/(\d+)\.html`),
			lookupBase:    "https://detail.1688.com/offer/",
			lookupSuffix:  ".html",
			pricePatterns: money,
		},
	}}
}

// All returns the configured platforms.
func (r *Registry) All() []*Platform {
	return r.platforms
}

// ByID looks a platform up by identifier.
func (r *Registry) ByID(id ID) (*Platform, bool) {
	for _, p := range r.platforms {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}
