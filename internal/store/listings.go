package store

import (
	"fmt"
	"sort"
	"time"

	"vesta/internal/search"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func cloneListing(l *Listing) *Listing {
	c := *l
	c.Images = append([]string{}, l.Images...)
	if l.RealEstate != nil {
		d := *l.RealEstate
		c.RealEstate = &d
	}
	if l.Vehicle != nil {
		d := *l.Vehicle
		c.Vehicle = &d
	}
	if l.Land != nil {
		d := *l.Land
		c.Land = &d
	}
	if l.Workplace != nil {
		d := *l.Workplace
		c.Workplace = &d
	}
	return &c
}

func sortByTime[T any](items []T, at func(T) time.Time, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return at(items[i]).After(at(items[j]))
		}
		return at(items[i]).Before(at(items[j]))
	})
}

func applyInput(l *Listing, in ListingInput) {
	l.Title = in.Title
	l.Description = in.Description
	l.Price = in.Price
	l.Currency = in.Currency
	l.City = in.City
	l.District = in.District
	if in.Status != "" {
		l.Status = in.Status
	}
	l.RealEstate, l.Vehicle, l.Land, l.Workplace = nil, nil, nil, nil
	switch l.Category {
	case CategoryRealEstate:
		d := *in.RealEstate
		l.RealEstate = &d
	case CategoryVehicle:
		d := *in.Vehicle
		l.Vehicle = &d
	case CategoryLand:
		d := *in.Land
		l.Land = &d
	case CategoryWorkplace:
		d := *in.Workplace
		l.Workplace = &d
	}
}

// CreateListing stores a new active listing owned by ownerID
func (s *Store) CreateListing(ownerID string, c Category, in ListingInput) (*Listing, error) {
	if err := in.Validate(c); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[ownerID]
	if !ok {
		return nil, fmt.Errorf("owner %s: %w", ownerID, ErrNotFound)
	}
	if owner.Banned {
		return nil, fmt.Errorf("banned users cannot post listings: %w", ErrForbidden)
	}

	now := s.now().UTC()
	l := &Listing{
		ID:        s.newID(),
		Category:  c,
		OwnerID:   ownerID,
		Images:    []string{},
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyInput(l, in)
	s.listings[l.ID] = l
	return cloneListing(l), nil
}

// Listing returns a copy of the listing
func (s *Store) Listing(id string) (*Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	return cloneListing(l), nil
}

// ViewListing returns the listing and counts the view
func (s *Store) ViewListing(id string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	l.ViewCount++
	return cloneListing(l), nil
}

// editable returns the listing if actor may modify it. Caller holds s.mu.
func (s *Store) editable(actorID string, isAdmin bool, id string) (*Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if l.OwnerID != actorID && !isAdmin {
		return nil, fmt.Errorf("listing %s belongs to another user: %w", id, ErrForbidden)
	}
	return l, nil
}

// UpdateListing replaces the writable fields of a listing
func (s *Store) UpdateListing(actorID string, isAdmin bool, id string, in ListingInput) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.editable(actorID, isAdmin, id)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(l.Category); err != nil {
		return nil, err
	}
	applyInput(l, in)
	l.UpdatedAt = s.now().UTC()
	return cloneListing(l), nil
}

// DeleteListing removes a listing and every favorite pointing at it
func (s *Store) DeleteListing(actorID string, isAdmin bool, id string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.editable(actorID, isAdmin, id)
	if err != nil {
		return nil, err
	}
	delete(s.listings, id)
	for _, favs := range s.favorites {
		delete(favs, id)
	}
	return l, nil
}

// AddImage appends an image URL to a listing
func (s *Store) AddImage(actorID string, isAdmin bool, id, url string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.editable(actorID, isAdmin, id)
	if err != nil {
		return nil, err
	}
	if len(l.Images) >= maxImages {
		return nil, fmt.Errorf("a listing holds at most %d images: %w", maxImages, ErrInvalid)
	}
	l.Images = append(l.Images, url)
	l.UpdatedAt = s.now().UTC()
	return cloneListing(l), nil
}

// RemoveImage drops an image URL from a listing
func (s *Store) RemoveImage(actorID string, isAdmin bool, id, url string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.editable(actorID, isAdmin, id)
	if err != nil {
		return nil, err
	}
	for i, img := range l.Images {
		if img == url {
			l.Images = append(l.Images[:i], l.Images[i+1:]...)
			l.UpdatedAt = s.now().UTC()
			return cloneListing(l), nil
		}
	}
	return nil, fmt.Errorf("image %s: %w", url, ErrNotFound)
}

// SetListingStatus is the moderation entry point
func (s *Store) SetListingStatus(id string, status ListingStatus) (*Listing, error) {
	if !status.valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	l.Status = status
	l.UpdatedAt = s.now().UTC()
	return cloneListing(l), nil
}

// ListingsByIDs returns the listings in the order of ids
func (s *Store) ListingsByIDs(ids []string) ([]*Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Listing, 0, len(ids))
	for _, id := range ids {
		l, ok := s.listings[id]
		if !ok {
			return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		out = append(out, cloneListing(l))
	}
	return out, nil
}

// ListListings runs a filtered, sorted, paginated query
func (s *Store) ListListings(f ListingFilter) ListingPage {
	terms := search.Terms(f.Query)

	s.mu.RLock()
	matched := make([]*Listing, 0)
	for _, l := range s.listings {
		if f.matches(l, terms) {
			matched = append(matched, cloneListing(l))
		}
	}
	s.mu.RUnlock()

	switch f.Sort {
	case SortPriceAsc:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price < matched[j].Price })
	case SortPriceDesc:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Price > matched[j].Price })
	case SortOldest:
		sortByTime(matched, func(l *Listing) time.Time { return l.CreatedAt }, false)
	default:
		sortByTime(matched, func(l *Listing) time.Time { return l.CreatedAt }, true)
	}

	page, size := f.Page, f.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	result := ListingPage{Items: []*Listing{}, Total: len(matched), Page: page, Size: size}
	// Pages past the end are empty; checked before multiplying so huge
	// page numbers cannot overflow.
	if page-1 > len(matched)/size {
		return result
	}
	start := (page - 1) * size
	if start < len(matched) {
		end := start + size
		if end > len(matched) {
			end = len(matched)
		}
		result.Items = matched[start:end]
	}
	return result
}

func (f ListingFilter) matches(l *Listing, terms []string) bool {
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if !f.AnyStatus {
		want := f.Status
		if want == "" {
			want = StatusActive
		}
		if l.Status != want {
			return false
		}
	}
	if f.OwnerID != "" && l.OwnerID != f.OwnerID {
		return false
	}
	if f.City != "" && !search.Equal(l.City, f.City) {
		return false
	}
	if f.District != "" && !search.Equal(l.District, f.District) {
		return false
	}
	if f.MinPrice != nil && l.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && l.Price > *f.MaxPrice {
		return false
	}
	if !search.MatchAll(terms, l.Title, l.Description, l.City, l.District) {
		return false
	}

	area, ok := listingArea(l)
	if (f.MinArea != nil || f.MaxArea != nil) && !ok {
		return false
	}
	if f.MinArea != nil && area < *f.MinArea {
		return false
	}
	if f.MaxArea != nil && area > *f.MaxArea {
		return false
	}

	if f.OfferType != "" {
		switch {
		case l.RealEstate != nil && l.RealEstate.OfferType == f.OfferType:
		case l.Workplace != nil && l.Workplace.OfferType == f.OfferType:
		default:
			return false
		}
	}
	if f.MinRooms > 0 && (l.RealEstate == nil || l.RealEstate.Rooms < f.MinRooms) {
		return false
	}

	if f.Brand != "" || f.Fuel != "" || f.Gear != "" || f.MinYear > 0 || f.MaxYear > 0 || f.MaxMileage > 0 {
		v := l.Vehicle
		if v == nil {
			return false
		}
		if f.Brand != "" && !search.Equal(v.Brand, f.Brand) {
			return false
		}
		if f.Fuel != "" && !search.Equal(v.Fuel, f.Fuel) {
			return false
		}
		if f.Gear != "" && !search.Equal(v.Gear, f.Gear) {
			return false
		}
		if f.MinYear > 0 && v.Year < f.MinYear {
			return false
		}
		if f.MaxYear > 0 && v.Year > f.MaxYear {
			return false
		}
		if f.MaxMileage > 0 && v.Mileage > f.MaxMileage {
			return false
		}
	}

	if f.Zoning != "" && (l.Land == nil || !search.Equal(l.Land.ZoningStatus, f.Zoning)) {
		return false
	}
	if f.WorkplaceType != "" && (l.Workplace == nil || !search.Equal(l.Workplace.Type, f.WorkplaceType)) {
		return false
	}
	return true
}

func listingArea(l *Listing) (float64, bool) {
	switch {
	case l.RealEstate != nil:
		return l.RealEstate.Area, true
	case l.Land != nil:
		return l.Land.Area, true
	case l.Workplace != nil:
		return l.Workplace.Area, true
	}
	return 0, false
}
