package booking

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

// DeepLink is an entry point into the middle of the flow.
type DeepLink struct {
	Service   string `json:"service,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	Location  string `json:"location,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Date      string `json:"date,omitempty"`
}

// Empty reports a link that selects nothing.
func (d DeepLink) Empty() bool {
	return d == DeepLink{}
}

// ParseDeepLink reads service, specialty, location, provider and date query
// parameters. A malformed date is dropped and reported; the rest of the link
// is still returned.
func ParseDeepLink(v url.Values) (DeepLink, error) {
	d := DeepLink{
		Service:   strings.TrimSpace(v.Get("service")),
		Specialty: strings.ToLower(strings.TrimSpace(v.Get("specialty"))),
		Location:  strings.ToLower(strings.TrimSpace(v.Get("location"))),
		Provider:  strings.TrimSpace(v.Get("provider")),
	}
	if raw := strings.TrimSpace(v.Get("date")); raw != "" {
		if _, err := time.Parse(catalog.DateLayout, raw); err != nil {
			return d, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
		}
		d.Date = raw
	}
	return d, nil
}

// slugify lowercases and joins alphanumeric runs with dashes.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// findServiceRef resolves an item id or a name slug against the menu.
func findServiceRef(menu *catalog.Menu, ref string) (catalog.MenuItem, catalog.MenuCategory, bool) {
	if item, cat, ok := menu.FindItem(ref); ok {
		return item, cat, true
	}
	if menu == nil {
		return catalog.MenuItem{}, catalog.MenuCategory{}, false
	}
	want := slugify(ref)
	for _, cat := range menu.Categories {
		for _, item := range cat.Items {
			if slugify(item.Name) == want {
				return item, cat, true
			}
		}
	}
	return catalog.MenuItem{}, catalog.MenuCategory{}, false
}
