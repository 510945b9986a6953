package compare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesta/internal/store"
)

func vehicle(id string, price float64) *store.Listing {
	return &store.Listing{
		ID: id, Category: store.CategoryVehicle, Title: "Car " + id, Price: price, Currency: "TRY",
		Images:  []string{"/uploads/" + id + ".jpg"},
		Vehicle: &store.VehicleDetails{Brand: "Fiat", Model: "Egea", Year: 2020, Mileage: 40000, Fuel: "diesel", Gear: "manual"},
	}
}

func land(id string) *store.Listing {
	return &store.Listing{ID: id, Category: store.CategoryLand, Title: "Land " + id, Price: 10,
		Land: &store.LandDetails{Area: 500, ZoningStatus: "residential"}}
}

func TestBuildTable(t *testing.T) {
	table, err := BuildTable([]*store.Listing{vehicle("a", 900000), vehicle("b", 750000), vehicle("c", 750000)})
	require.NoError(t, err)

	assert.Equal(t, store.CategoryVehicle, table.Category)
	assert.Equal(t, "b", table.LowestPriceID)
	require.Len(t, table.Columns, 3)
	assert.Equal(t, "/uploads/a.jpg", table.Columns[0].Image)

	rows := map[string]Row{}
	for _, r := range table.Rows {
		rows[r.Key] = r
		assert.Len(t, r.Values, 3, r.Key)
	}
	assert.Equal(t, []string{"900000 TRY", "750000 TRY", "750000 TRY"}, rows["price"].Values)
	assert.Equal(t, 1, rows["price"].Best)
	assert.Equal(t, -1, rows["brand"].Best)
	assert.Equal(t, "40000", rows["mileage"].Values[0])
}

func TestBuildTableRejects(t *testing.T) {
	tests := []struct {
		name     string
		listings []*store.Listing
	}{
		{"one listing", []*store.Listing{vehicle("a", 1)}},
		{"five listings", []*store.Listing{vehicle("a", 1), vehicle("b", 1), vehicle("c", 1), vehicle("d", 1), vehicle("e", 1)}},
		{"mixed categories", []*store.Listing{vehicle("a", 1), land("b")}},
		{"duplicate", []*store.Listing{vehicle("a", 1), vehicle("a", 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTable(tt.listings)
			assert.ErrorIs(t, err, store.ErrInvalid)
		})
	}
}

func TestLandRows(t *testing.T) {
	table, err := BuildTable([]*store.Listing{land("a"), land("b")})
	require.NoError(t, err)

	var keys []string
	for _, r := range table.Rows {
		keys = append(keys, r.Key)
	}
	assert.Contains(t, keys, "zoningStatus")
	assert.NotContains(t, keys, "mileage")
}

func TestSelectionToggle(t *testing.T) {
	s := NewSelection()
	a, b := vehicle("a", 1), vehicle("b", 2)

	assert.True(t, s.Toggle(a))
	assert.True(t, s.Toggle(b))
	assert.Equal(t, store.CategoryVehicle, s.Category())

	// A listing from another category is ignored until the selection is cleared.
	assert.False(t, s.Toggle(land("x")))
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	assert.False(t, s.Toggle(a))
	assert.Equal(t, []string{"b"}, s.IDs())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Toggle(land("x")))
	assert.Equal(t, store.CategoryLand, s.Category())
}

func TestSelectionCap(t *testing.T) {
	s := NewSelection()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.True(t, s.Toggle(vehicle(id, 1)))
	}
	assert.False(t, s.Toggle(vehicle("e", 1)))
	assert.False(t, s.Contains("e"))
	assert.Equal(t, MaxItems, s.Len())
}

type fakeComparer struct {
	ids []string
}

func (f *fakeComparer) Compare(_ context.Context, ids []string) (*Table, error) {
	f.ids = ids
	return &Table{}, nil
}

func TestSelectionCompare(t *testing.T) {
	s := NewSelection()
	c := &fakeComparer{}

	s.Toggle(vehicle("a", 1))
	_, err := s.Compare(context.Background(), c)
	assert.ErrorIs(t, err, store.ErrInvalid)
	assert.Nil(t, c.ids)

	s.Toggle(vehicle("b", 1))
	_, err = s.Compare(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.ids)
}
