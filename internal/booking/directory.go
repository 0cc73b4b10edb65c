package booking

import (
	"encoding/json"
	"fmt"
	"os"
)

// Specialty is a named offering pre-mapped to one catalog item by name.
type Specialty struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	ServiceName string `json:"serviceName"`
}

// BundleItem is one treatment in a bundle.
type BundleItem struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	ServiceName string `json:"serviceName"`
}

// Bundle is a curated group of treatments under one theme.
type Bundle struct {
	Slug  string       `json:"slug"`
	Title string       `json:"title"`
	Items []BundleItem `json:"items"`
}

// Item returns the bundle item with slug.
func (b *Bundle) Item(slug string) (BundleItem, bool) {
	if b == nil {
		return BundleItem{}, false
	}
	for _, it := range b.Items {
		if it.Slug == slug {
			return it, true
		}
	}
	return BundleItem{}, false
}

// AddonCandidate is a supplementary service offered next to a primary one.
// ServiceItemID may be empty, in which case ServiceName (or Title) is
// resolved against the menu.
type AddonCandidate struct {
	Slug          string `json:"slug,omitempty"`
	CatalogID     string `json:"catalogId,omitempty"`
	Title         string `json:"title"`
	ServiceName   string `json:"serviceName,omitempty"`
	ServiceItemID string `json:"serviceItemId,omitempty"`
	CategoryName  string `json:"categoryName,omitempty"`
}

// Key identifies the candidate the same way AddonService.Key does.
func (c AddonCandidate) Key() string {
	switch {
	case c.Slug != "":
		return c.Slug
	case c.CatalogID != "":
		return c.CatalogID
	default:
		return c.ServiceItemID
	}
}

// Directory holds the curated specialties, bundles and add-on rules layered
// on top of the raw catalog.
type Directory struct {
	Specialties []Specialty                 `json:"specialties"`
	Bundles     []Bundle                    `json:"bundles"`
	AddonRules  map[string][]AddonCandidate `json:"addonRules"`
}

// Specialty looks a specialty up by slug.
func (d *Directory) Specialty(slug string) (Specialty, bool) {
	if d == nil {
		return Specialty{}, false
	}
	for _, s := range d.Specialties {
		if s.Slug == slug {
			return s, true
		}
	}
	return Specialty{}, false
}

// Bundle looks a bundle up by slug.
func (d *Directory) Bundle(slug string) (Bundle, bool) {
	if d == nil {
		return Bundle{}, false
	}
	for _, b := range d.Bundles {
		if b.Slug == slug {
			return b, true
		}
	}
	return Bundle{}, false
}

// LoadDirectory reads a JSON directory file. An empty path yields the
// built-in directory.
func LoadDirectory(path string) (*Directory, error) {
	if path == "" {
		return DefaultDirectory(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("booking: read directory: %w", err)
	}
	var dir Directory
	if err := json.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("booking: parse directory: %w", err)
	}
	return &dir, nil
}

// DefaultDirectory is the built-in set of specialties, bundles and add-on
// pairings.
func DefaultDirectory() *Directory {
	return &Directory{
		Specialties: []Specialty{
			{Slug: "tox", Title: "Tox", ServiceName: "Tox Consult"},
			{Slug: "facials", Title: "Facials", ServiceName: "Signature Facial"},
			{Slug: "filler", Title: "Filler", ServiceName: "Filler Consult"},
			{Slug: "massage", Title: "Massage", ServiceName: "Massage"},
		},
		Bundles: []Bundle{
			{
				Slug:  "glow-up",
				Title: "Glow Up",
				Items: []BundleItem{
					{Slug: "signature-facial", Title: "Signature Facial", ServiceName: "Signature Facial"},
					{Slug: "dermaplane", Title: "Dermaplane", ServiceName: "Dermaplane"},
					{Slug: "hydrafacial", Title: "HydraFacial", ServiceName: "HydraFacial"},
				},
			},
		},
		AddonRules: map[string][]AddonCandidate{
			"tox": {
				{Slug: "dermaplane", Title: "Dermaplane", ServiceName: "Dermaplane"},
				{Slug: "lip-flip", Title: "Lip Flip", ServiceName: "Lip Flip"},
			},
			"facials": {
				{Slug: "dermaplane", Title: "Dermaplane", ServiceName: "Dermaplane"},
				{Slug: "led-therapy", Title: "LED Therapy", ServiceName: "LED Therapy"},
			},
		},
	}
}
