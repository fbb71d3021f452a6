package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/1etu/easyupoo/internal/platform"
)

func price(v float64) *float64 { return &v }

func TestSelectPrefersAvailableOverPriority(t *testing.T) {
	// A has the better priority but no price; B survives filtering.
	got := selectPlatformPrice([]platformResult{
		{priority: 1, result: ResolvedPrice{Platform: platform.Weidian}},
		{priority: 2, result: ResolvedPrice{Platform: platform.Taobao, Price: price(10), Link: "https://item.taobao.com/item.htm?id=1"}},
	})

	assert.Equal(t, platform.Taobao, got.Platform)
	assert.Equal(t, 10.0, *got.Price)
}

func TestSelectLowestPriorityAmongSurvivors(t *testing.T) {
	got := selectPlatformPrice([]platformResult{
		{priority: 3, result: ResolvedPrice{Platform: platform.Ali1688, Price: price(5), Link: "https://detail.1688.com/offer/1.html"}},
		{priority: 1, result: ResolvedPrice{Platform: platform.Weidian, Price: price(9), Link: "https://weidian.com/item.html?itemID=1"}},
	})

	assert.Equal(t, platform.Weidian, got.Platform, "ascending priority: lower value wins")
}

func TestSelectFallbackReturnsLowestPriorityVerbatim(t *testing.T) {
	unavailable := ResolvedPrice{Platform: platform.Weidian, Link: "https://weidian.com/item.html?itemID=1"}
	got := selectPlatformPrice([]platformResult{
		{priority: 2, result: ResolvedPrice{Platform: platform.Taobao}},
		{priority: 1, result: unavailable},
	})

	assert.Equal(t, unavailable, got, "no survivors: priority 1 is returned as-is, unavailable price included")
	assert.Nil(t, got.Price)
}

func TestSelectEmptyCandidates(t *testing.T) {
	got := selectPlatformPrice(nil)
	assert.Equal(t, ResolvedPrice{}, got, "a well-formed result is still returned")
	assert.False(t, got.Available())
}

func TestSelectMissingLinkDisqualifies(t *testing.T) {
	// A price without a link must not survive filtering.
	got := selectPlatformPrice([]platformResult{
		{priority: 1, result: ResolvedPrice{Platform: platform.Weidian, Price: price(7)}},
		{priority: 2, result: ResolvedPrice{Platform: platform.Taobao, Price: price(12), Link: "https://item.taobao.com/item.htm?id=1"}},
	})

	assert.Equal(t, platform.Taobao, got.Platform)
}
