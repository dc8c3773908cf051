//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{name: "bare domain", input: "bestbuy.com", expected: "bestbuy.com"},
		{name: "uppercase", input: "BestBuy.COM", expected: "bestbuy.com"},
		{name: "www prefix", input: "www.bestbuy.com", expected: "bestbuy.com"},
		{name: "https url", input: "https://www.bestbuy.com/site/search", expected: "bestbuy.com"},
		{name: "http url with query", input: "http://target.com/s?searchTerm=tv", expected: "target.com"},
		{name: "port stripped", input: "shop.example.com:8443", expected: "shop.example.com"},
		{name: "trailing dot", input: "walmart.com.", expected: "walmart.com"},
		{name: "surrounding spaces", input: "  ebay.com  ", expected: "ebay.com"},
		{name: "bare path without scheme", input: "newegg.com/p/123", expected: "newegg.com"},
		{name: "empty", input: "", expectError: true},
		{name: "no tld", input: "localhost", expectError: true},
		{name: "scheme only", input: "https://", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStore_SearchURL(t *testing.T) {
	tpl := "https://www.bestbuy.com/site/searchpage.jsp?st={query}"
	store := Store{Domain: "bestbuy.com", URLTemplate: &tpl}

	got := store.SearchURL("sony wh-1000xm5")
	assert.Equal(t, "https://www.bestbuy.com/site/searchpage.jsp?st=sony+wh-1000xm5", got)

	store.URLTemplate = nil
	assert.Empty(t, store.SearchURL("anything"))
}

func TestCreateStoreRequest_Validate(t *testing.T) {
	req := &CreateStoreRequest{Domain: "https://www.MicroCenter.com/search", Name: "  Micro Center  "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "microcenter.com", req.Domain)
	assert.Equal(t, "Micro Center", req.Name)
	assert.Equal(t, DefaultStoreCategory, req.Category)

	req = &CreateStoreRequest{Domain: "not a domain"}
	require.Error(t, req.Validate())

	badTpl := "https://example.com/search?q=PRODUCT"
	req = &CreateStoreRequest{Domain: "example.com", URLTemplate: &badTpl}
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{query}")
}

func TestUpdateStorePreferenceRequest_Validate(t *testing.T) {
	req := &UpdateStorePreferenceRequest{}
	require.Error(t, req.Validate())

	enabled := true
	req = &UpdateStorePreferenceRequest{Enabled: &enabled}
	assert.NoError(t, req.Validate())

	over := 150
	req = &UpdateStorePreferenceRequest{PriorityOverride: &over}
	require.Error(t, req.Validate())
}
