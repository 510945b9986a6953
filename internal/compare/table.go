// Package compare builds side-by-side comparison tables of listings and
// keeps the client-side comparison selection.
package compare

import (
	"fmt"
	"strconv"

	"vesta/internal/store"
)

const (
	// MinItems is the smallest comparable set
	MinItems = 2
	// MaxItems caps both the table and the selection
	MaxItems = 4
)

// Column describes one compared listing
type Column struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Image    string  `json:"image,omitempty"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// Row is one attribute across all compared listings. Best is the index of
// the most favorable value, -1 when the row has no ranking.
type Row struct {
	Key    string   `json:"key"`
	Label  string   `json:"label"`
	Values []string `json:"values"`
	Best   int      `json:"best"`
}

// Table is the comparison result
type Table struct {
	Category      store.Category `json:"category"`
	Columns       []Column       `json:"columns"`
	Rows          []Row          `json:"rows"`
	LowestPriceID string         `json:"lowestPriceId"`
}

type attribute struct {
	key   string
	label string
	value func(*store.Listing) string
}

// BuildTable compares 2 to 4 listings of the same category
func BuildTable(listings []*store.Listing) (*Table, error) {
	switch {
	case len(listings) < MinItems:
		return nil, fmt.Errorf("select at least %d listings to compare: %w", MinItems, store.ErrInvalid)
	case len(listings) > MaxItems:
		return nil, fmt.Errorf("at most %d listings can be compared: %w", MaxItems, store.ErrInvalid)
	}

	category := listings[0].Category
	seen := make(map[string]bool, len(listings))
	for _, l := range listings {
		if l.Category != category {
			return nil, fmt.Errorf("cannot compare %s with %s: %w", category, l.Category, store.ErrInvalid)
		}
		if seen[l.ID] {
			return nil, fmt.Errorf("listing %s selected twice: %w", l.ID, store.ErrInvalid)
		}
		seen[l.ID] = true
	}

	t := &Table{Category: category}
	lowest := 0
	for i, l := range listings {
		col := Column{ID: l.ID, Title: l.Title, Price: l.Price, Currency: l.Currency}
		if len(l.Images) > 0 {
			col.Image = l.Images[0]
		}
		t.Columns = append(t.Columns, col)
		if l.Price < listings[lowest].Price {
			lowest = i
		}
	}
	t.LowestPriceID = listings[lowest].ID

	for _, a := range attributes(category) {
		row := Row{Key: a.key, Label: a.label, Best: -1}
		for _, l := range listings {
			row.Values = append(row.Values, a.value(l))
		}
		if a.key == "price" {
			row.Best = lowest
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func attributes(c store.Category) []attribute {
	attrs := []attribute{
		{"price", "Price", func(l *store.Listing) string { return formatMoney(l.Price, l.Currency) }},
		{"city", "City", func(l *store.Listing) string { return l.City }},
		{"district", "District", func(l *store.Listing) string { return l.District }},
		{"status", "Status", func(l *store.Listing) string { return string(l.Status) }},
	}

	switch c {
	case store.CategoryRealEstate:
		re := func(f func(*store.RealEstateDetails) string) func(*store.Listing) string {
			return func(l *store.Listing) string {
				if l.RealEstate == nil {
					return ""
				}
				return f(l.RealEstate)
			}
		}
		attrs = append(attrs,
			attribute{"offerType", "Offer type", re(func(d *store.RealEstateDetails) string { return d.OfferType })},
			attribute{"rooms", "Rooms", re(func(d *store.RealEstateDetails) string { return strconv.Itoa(d.Rooms) })},
			attribute{"area", "Area (m²)", re(func(d *store.RealEstateDetails) string { return formatArea(d.Area) })},
			attribute{"floor", "Floor", re(func(d *store.RealEstateDetails) string { return strconv.Itoa(d.Floor) })},
			attribute{"buildingAge", "Building age", re(func(d *store.RealEstateDetails) string { return strconv.Itoa(d.BuildingAge) })},
			attribute{"heating", "Heating", re(func(d *store.RealEstateDetails) string { return d.Heating })},
			attribute{"furnished", "Furnished", re(func(d *store.RealEstateDetails) string { return yesNo(d.Furnished) })},
		)
	case store.CategoryVehicle:
		v := func(f func(*store.VehicleDetails) string) func(*store.Listing) string {
			return func(l *store.Listing) string {
				if l.Vehicle == nil {
					return ""
				}
				return f(l.Vehicle)
			}
		}
		attrs = append(attrs,
			attribute{"brand", "Brand", v(func(d *store.VehicleDetails) string { return d.Brand })},
			attribute{"model", "Model", v(func(d *store.VehicleDetails) string { return d.Model })},
			attribute{"year", "Year", v(func(d *store.VehicleDetails) string { return strconv.Itoa(d.Year) })},
			attribute{"mileage", "Mileage (km)", v(func(d *store.VehicleDetails) string { return strconv.Itoa(d.Mileage) })},
			attribute{"fuel", "Fuel", v(func(d *store.VehicleDetails) string { return d.Fuel })},
			attribute{"gear", "Gear", v(func(d *store.VehicleDetails) string { return d.Gear })},
			attribute{"bodyType", "Body type", v(func(d *store.VehicleDetails) string { return d.BodyType })},
			attribute{"color", "Color", v(func(d *store.VehicleDetails) string { return d.Color })},
		)
	case store.CategoryLand:
		ld := func(f func(*store.LandDetails) string) func(*store.Listing) string {
			return func(l *store.Listing) string {
				if l.Land == nil {
					return ""
				}
				return f(l.Land)
			}
		}
		attrs = append(attrs,
			attribute{"area", "Area (m²)", ld(func(d *store.LandDetails) string { return formatArea(d.Area) })},
			attribute{"zoningStatus", "Zoning", ld(func(d *store.LandDetails) string { return d.ZoningStatus })},
			attribute{"parcelNo", "Parcel", ld(func(d *store.LandDetails) string { return d.ParcelNo })},
			attribute{"blockNo", "Block", ld(func(d *store.LandDetails) string { return d.BlockNo })},
			attribute{"titleDeedType", "Title deed", ld(func(d *store.LandDetails) string { return d.TitleDeedType })},
		)
	case store.CategoryWorkplace:
		w := func(f func(*store.WorkplaceDetails) string) func(*store.Listing) string {
			return func(l *store.Listing) string {
				if l.Workplace == nil {
					return ""
				}
				return f(l.Workplace)
			}
		}
		attrs = append(attrs,
			attribute{"offerType", "Offer type", w(func(d *store.WorkplaceDetails) string { return d.OfferType })},
			attribute{"type", "Type", w(func(d *store.WorkplaceDetails) string { return d.Type })},
			attribute{"area", "Area (m²)", w(func(d *store.WorkplaceDetails) string { return formatArea(d.Area) })},
			attribute{"floor", "Floor", w(func(d *store.WorkplaceDetails) string { return strconv.Itoa(d.Floor) })},
			attribute{"openArea", "Open area", w(func(d *store.WorkplaceDetails) string { return yesNo(d.OpenArea) })},
		)
	}
	return attrs
}

func formatMoney(amount float64, currency string) string {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

func formatArea(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
