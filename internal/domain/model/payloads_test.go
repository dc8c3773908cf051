//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOptions_Canonical(t *testing.T) {
	a := SearchOptions{MaxResults: 5, Condition: ConditionNew, InStockOnly: true}
	b := SearchOptions{InStockOnly: true, Condition: ConditionNew, MaxResults: 5}
	assert.Equal(t, a.Canonical(), b.Canonical())

	// Zero-value options collapse to the empty canonical form.
	assert.Empty(t, SearchOptions{}.Canonical())

	c := SearchOptions{MaxResults: 5, Condition: ConditionUsed, InStockOnly: true}
	assert.NotEqual(t, a.Canonical(), c.Canonical())
}

func TestPriceResult_Usable(t *testing.T) {
	r := PriceResult{Price: 19.99, URL: "https://example.com/p/1"}
	assert.True(t, r.Usable())

	assert.False(t, (&PriceResult{Price: 0, URL: "https://example.com"}).Usable())
	assert.False(t, (&PriceResult{Price: 9.99}).Usable())
}

func TestImageRef_Validate(t *testing.T) {
	ref := &ImageRef{Base64: "aGVsbG8=", MIMEType: "image/jpeg"}
	assert.NoError(t, ref.Validate())

	ref = &ImageRef{Path: "images/ab/abc123.jpg"}
	assert.NoError(t, ref.Validate())

	ref = &ImageRef{}
	require.Error(t, ref.Validate())

	ref = &ImageRef{Base64: "aGVsbG8=", Path: "images/x.jpg", MIMEType: "image/jpeg"}
	require.Error(t, ref.Validate())

	ref = &ImageRef{Base64: "aGVsbG8="}
	require.Error(t, ref.Validate(), "base64 images need a mime type")
}

func TestDiscoveryInput_Validate(t *testing.T) {
	in := &DiscoveryInput{Query: "  standing desk  "}
	require.NoError(t, in.Validate())
	assert.Equal(t, "standing desk", in.Query)

	in = &DiscoveryInput{}
	require.Error(t, in.Validate())

	in = &DiscoveryInput{Image: &ImageRef{Path: "images/ab/abc.jpg"}}
	assert.NoError(t, in.Validate())
}

func TestNearbyStoreDiscoveryInput_Validate(t *testing.T) {
	in := &NearbyStoreDiscoveryInput{PostalCode: " 97210 "}
	require.NoError(t, in.Validate())
	assert.Equal(t, "97210", in.PostalCode)
	assert.Equal(t, "grocery", in.StoreType, "store type defaults")

	in = &NearbyStoreDiscoveryInput{}
	require.Error(t, in.Validate())

	in = &NearbyStoreDiscoveryInput{PostalCode: "97210", RadiusKM: -1}
	require.Error(t, in.Validate())
}

func TestDecodeInput(t *testing.T) {
	var in PriceSearchInput
	err := DecodeInput(json.RawMessage(`{"query":"usb-c hub","options":{"max_results":5}}`), &in)
	require.NoError(t, err)
	assert.Equal(t, "usb-c hub", in.Query)
	assert.Equal(t, 5, in.Options.MaxResults)

	var bad PriceSearchInput
	err = DecodeInput(json.RawMessage(`{"query":""}`), &bad)
	require.Error(t, err)

	err = DecodeInput(nil, &bad)
	require.Error(t, err)
}
