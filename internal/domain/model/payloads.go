//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// Job inputs are a tagged union: the job row's type selects which of these
// structures its raw input decodes into. Decoding happens once at the worker
// boundary; handlers never re-parse raw JSON mid-run.

// ImageRef locates the image for vision jobs. Exactly one of Base64 or Path
// must be set; Path refers to a previously stored image.
type ImageRef struct {
	Base64   string `json:"image_base64,omitempty"`
	Path     string `json:"image_path,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Validate validates the image reference.
func (r *ImageRef) Validate() error {
	hasB64 := strings.TrimSpace(r.Base64) != ""
	hasPath := strings.TrimSpace(r.Path) != ""
	if hasB64 == hasPath {
		return errors.New("exactly one of image_base64 or image_path is required")
	}
	if hasB64 && r.MIMEType == "" {
		return errors.New("mime_type is required with image_base64")
	}
	return nil
}

// PriceSearchInput is the input payload for price-search and price-refresh jobs.
type PriceSearchInput struct {
	Query   string        `json:"query"`
	Options SearchOptions `json:"options,omitempty"`
}

// Validate validates PriceSearchInput.
func (in *PriceSearchInput) Validate() error {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return errors.New("query is required")
	}
	return in.Options.Validate()
}

// PriceSearchOutput is the output payload for price-search and price-refresh jobs.
type PriceSearchOutput struct {
	Query     string           `json:"query"`
	Discovery *DiscoveryResult `json:"discovery,omitempty"`
	FromCache bool             `json:"from_cache,omitempty"`
	RunLog    json.RawMessage  `json:"run_log,omitempty"`
}

// IdentifiedProduct is the structured identification a vision provider
// produces for a product image.
type IdentifiedProduct struct {
	Name       string            `json:"name"`
	Brand      string            `json:"brand,omitempty"`
	Category   string            `json:"category,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Confidence float64           `json:"confidence"`
}

// ProductIdentificationInput is the input payload for product-identification jobs.
type ProductIdentificationInput struct {
	ImageRef
	Hint string `json:"hint,omitempty"`
}

// Validate validates ProductIdentificationInput.
func (in *ProductIdentificationInput) Validate() error {
	return in.ImageRef.Validate()
}

// ProductIdentificationOutput is the output payload for product-identification jobs.
// RawText carries the provider's unparsed answer when structured extraction
// fails; Product is nil in that case.
type ProductIdentificationOutput struct {
	Product   *IdentifiedProduct `json:"product,omitempty"`
	RawText   string             `json:"raw_text,omitempty"`
	ImagePath string             `json:"image_path,omitempty"`
	RunLog    json.RawMessage    `json:"run_log,omitempty"`
}

// ImageAnalysisInput is the input payload for image-analysis jobs.
type ImageAnalysisInput struct {
	ImageRef
	Prompt string `json:"prompt"`
}

// Validate validates ImageAnalysisInput.
func (in *ImageAnalysisInput) Validate() error {
	if strings.TrimSpace(in.Prompt) == "" {
		return errors.New("prompt is required")
	}
	return in.ImageRef.Validate()
}

// ImageAnalysisOutput is the output payload for image-analysis jobs.
type ImageAnalysisOutput struct {
	Analysis  string          `json:"analysis"`
	Extracted json.RawMessage `json:"extracted,omitempty"`
	ImagePath string          `json:"image_path,omitempty"`
	RunLog    json.RawMessage `json:"run_log,omitempty"`
}

// SmartFillItem is one existing list entry given to smart-fill as context.
type SmartFillItem struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
}

// SmartFillInput is the input payload for smart-fill jobs.
type SmartFillInput struct {
	ListID string          `json:"list_id"`
	Items  []SmartFillItem `json:"items"`
	Note   string          `json:"note,omitempty"`
}

// Validate validates SmartFillInput.
func (in *SmartFillInput) Validate() error {
	if strings.TrimSpace(in.ListID) == "" {
		return errors.New("list_id is required")
	}
	for i := range in.Items {
		if strings.TrimSpace(in.Items[i].Name) == "" {
			return errors.New("item name is required")
		}
	}
	return nil
}

// SmartFillSuggestion is one proposed list addition.
type SmartFillSuggestion struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// SmartFillOutput is the output payload for smart-fill jobs. RawText carries
// the provider answer when suggestion parsing fails.
type SmartFillOutput struct {
	Suggestions []SmartFillSuggestion `json:"suggestions"`
	RawText     string                `json:"raw_text,omitempty"`
	RunLog      json.RawMessage       `json:"run_log,omitempty"`
}

// DiscoveryInput is the input payload for discovery and discovery-refresh
// jobs. Either a query or an image must be present; with an image the run
// identifies the product first and feeds the identified name into price
// discovery.
type DiscoveryInput struct {
	Query   string        `json:"query,omitempty"`
	Image   *ImageRef     `json:"image,omitempty"`
	Options SearchOptions `json:"options,omitempty"`
}

// Validate validates DiscoveryInput.
func (in *DiscoveryInput) Validate() error {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" && in.Image == nil {
		return errors.New("query or image is required")
	}
	if in.Image != nil {
		if err := in.Image.Validate(); err != nil {
			return err
		}
	}
	return in.Options.Validate()
}

// DiscoveryOutput is the output payload for discovery and discovery-refresh jobs.
type DiscoveryOutput struct {
	Product   *IdentifiedProduct `json:"product,omitempty"`
	Query     string             `json:"query,omitempty"`
	Discovery *DiscoveryResult   `json:"discovery,omitempty"`
	FromCache bool               `json:"from_cache,omitempty"`
	RunLog    json.RawMessage    `json:"run_log,omitempty"`
}

// NearbyStoreDiscoveryInput is the input payload for nearby-store-discovery jobs.
type NearbyStoreDiscoveryInput struct {
	PostalCode string  `json:"postal_code"`
	StoreType  string  `json:"store_type,omitempty"`
	RadiusKM   float64 `json:"radius_km,omitempty"`
}

// Validate validates NearbyStoreDiscoveryInput.
func (in *NearbyStoreDiscoveryInput) Validate() error {
	in.PostalCode = strings.TrimSpace(in.PostalCode)
	if in.PostalCode == "" {
		return errors.New("postal_code is required")
	}
	if len(in.PostalCode) > 16 {
		return errors.New("postal_code is too long")
	}
	in.StoreType = strings.ToLower(strings.TrimSpace(in.StoreType))
	if in.StoreType == "" {
		in.StoreType = "grocery"
	}
	if in.RadiusKM < 0 {
		return errors.New("radius_km must be >= 0")
	}
	return nil
}

// DiscoveredStore is one local store found by nearby-store-discovery.
type DiscoveredStore struct {
	Name       string   `json:"name"`
	Domain     string   `json:"domain,omitempty"`
	Address    string   `json:"address,omitempty"`
	StoreType  string   `json:"store_type,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	DistanceKM *float64 `json:"distance_km,omitempty"`
}

// NearbyStoreDiscoveryOutput is the output payload for nearby-store-discovery jobs.
type NearbyStoreDiscoveryOutput struct {
	PostalCode string            `json:"postal_code"`
	StoreType  string            `json:"store_type"`
	Stores     []DiscoveredStore `json:"stores"`
	FromCache  bool              `json:"from_cache,omitempty"`
	RunLog     json.RawMessage   `json:"run_log,omitempty"`
}

// DecodeInput decodes a job's raw input into dst and runs its validation.
func DecodeInput(raw json.RawMessage, dst interface{ Validate() error }) error {
	if len(raw) == 0 {
		return errors.New("input is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.New("input does not match job type")
	}
	return dst.Validate()
}
