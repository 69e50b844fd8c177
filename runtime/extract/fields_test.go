package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePriceHandlesUSDecimalSeparator(t *testing.T) {
	v, currency := parsePrice("$1,299.99")
	assert.Equal(t, 1299.99, v)
	assert.Equal(t, "USD", currency)
}

func TestParsePriceHandlesEuropeanDecimalSeparator(t *testing.T) {
	v, currency := parsePrice("1.299,99 €")
	assert.Equal(t, 1299.99, v)
	assert.Equal(t, "EUR", currency)
}

func TestParsePriceWithNoDigitsReturnsZero(t *testing.T) {
	v, currency := parsePrice("Free")
	assert.Equal(t, 0.0, v)
	assert.Equal(t, "", currency)
}

func TestParsePriceWholeNumberNoSeparator(t *testing.T) {
	v, _ := parsePrice("£20")
	assert.Equal(t, 20.0, v)
}

func TestCurrencyOfPrefersSymbolOverCode(t *testing.T) {
	assert.Equal(t, "USD", currencyOf("$50"))
	assert.Equal(t, "GBP", currencyOf("£50"))
	assert.Equal(t, "EUR", currencyOf("50 EUR"))
	assert.Equal(t, "PLN", currencyOf("50 PLN"))
	assert.Equal(t, "", currencyOf("50"))
}

func TestBuildContainerSelectorUsesMajorityClass(t *testing.T) {
	members := []rawNode{
		{Tag: "div", Class: "card product"},
		{Tag: "div", Class: "card product"},
		{Tag: "div", Class: "card product featured"},
	}
	sel := buildContainerSelector(members)
	assert.Equal(t, "div.card.product", sel)
}

func TestBuildContainerSelectorFallsBackToTagWithoutMajorityClass(t *testing.T) {
	members := []rawNode{
		{Tag: "li", Class: "a"},
		{Tag: "li", Class: "b"},
		{Tag: "li", Class: "c"},
	}
	assert.Equal(t, "li", buildContainerSelector(members))
}

func TestPassesFilterBounds(t *testing.T) {
	under := 50.0
	above := 10.0
	f := Filter{Under: &under, Above: &above, Currency: "USD"}

	assert.True(t, passesFilter(ProductRecord{Price: 25, Currency: "USD"}, f))
	assert.False(t, passesFilter(ProductRecord{Price: 60, Currency: "USD"}, f))
	assert.False(t, passesFilter(ProductRecord{Price: 5, Currency: "USD"}, f))
	assert.False(t, passesFilter(ProductRecord{Price: 25, Currency: "EUR"}, f))
}

func TestPassesFilterZeroValueAllowsEverything(t *testing.T) {
	assert.True(t, passesFilter(ProductRecord{Price: 999999, Currency: "JPY"}, Filter{}))
}
