package booking

import "github.com/reluxe-code/reluxe-booking/internal/catalog"

// AddonChoices lists what may be added next to the primary service. Browse is
// only set when no curated list applies.
type AddonChoices struct {
	Curated []AddonCandidate       `json:"curated,omitempty"`
	Browse  []catalog.MenuCategory `json:"browse,omitempty"`
}

// AddonRef names the add-on a caller wants to attach.
type AddonRef struct {
	Slug          string `json:"slug,omitempty"`
	CatalogID     string `json:"catalogId,omitempty"`
	ServiceItemID string `json:"serviceItemId,omitempty"`
}

func (r AddonRef) matches(c AddonCandidate) bool {
	return (r.Slug != "" && r.Slug == c.Slug) ||
		(r.CatalogID != "" && r.CatalogID == c.CatalogID) ||
		(r.ServiceItemID != "" && r.ServiceItemID == c.ServiceItemID)
}

// CompatibleAddons returns curated candidates from the specialty rules and
// the remaining bundle items, excluding the primary service and anything
// already added. Without a curated list the full menu is offered by
// category, minus the same exclusions.
func CompatibleAddons(s *State, dir *Directory, menu *catalog.Menu) AddonChoices {
	var pool []AddonCandidate
	if s.Specialty != "" && dir != nil {
		pool = append(pool, dir.AddonRules[s.Specialty]...)
	}
	if s.Bundle != nil {
		for _, it := range s.Bundle.Items {
			pool = append(pool, AddonCandidate{Slug: it.Slug, Title: it.Title, ServiceName: it.ServiceName})
		}
	}

	var curated []AddonCandidate
	seen := map[string]bool{}
	for _, c := range pool {
		c, ok := resolveCandidate(c, menu)
		if !ok || seen[c.Key()] {
			continue
		}
		if s.duplicatesSelection(c.Slug, c.CatalogID, c.ServiceItemID) {
			continue
		}
		seen[c.Key()] = true
		curated = append(curated, c)
	}
	if len(curated) > 0 {
		return AddonChoices{Curated: curated}
	}
	return AddonChoices{Browse: browseMenu(s, menu)}
}

func resolveCandidate(c AddonCandidate, menu *catalog.Menu) (AddonCandidate, bool) {
	if c.ServiceItemID != "" {
		return c, true
	}
	name := c.ServiceName
	if name == "" {
		name = c.Title
	}
	item, cat, ok := menu.FindItemByName(name)
	if !ok {
		return c, false
	}
	c.ServiceItemID = item.ID
	if c.CategoryName == "" {
		c.CategoryName = cat.Name
	}
	return c, true
}

func browseMenu(s *State, menu *catalog.Menu) []catalog.MenuCategory {
	if menu == nil {
		return nil
	}
	var out []catalog.MenuCategory
	for _, cat := range menu.Categories {
		items := make([]catalog.MenuItem, 0, len(cat.Items))
		for _, it := range cat.Items {
			if s.duplicatesSelection("", "", it.ID) {
				continue
			}
			items = append(items, it)
		}
		if len(items) > 0 {
			out = append(out, catalog.MenuCategory{ID: cat.ID, Name: cat.Name, Items: items})
		}
	}
	return out
}

// findAddonCandidate resolves ref against the current choices, falling back
// to any menu item by id.
func findAddonCandidate(choices AddonChoices, menu *catalog.Menu, ref AddonRef) (AddonCandidate, catalog.MenuItem, bool) {
	for _, c := range choices.Curated {
		if ref.matches(c) {
			item, _, _ := menu.FindItem(c.ServiceItemID)
			return c, item, true
		}
	}
	if ref.ServiceItemID == "" {
		return AddonCandidate{}, catalog.MenuItem{}, false
	}
	item, cat, ok := menu.FindItem(ref.ServiceItemID)
	if !ok {
		return AddonCandidate{}, catalog.MenuItem{}, false
	}
	return AddonCandidate{Title: item.Name, ServiceItemID: item.ID, CategoryName: cat.Name}, item, true
}
