package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"vesta/internal/store"
)

// ListingQuery filters a listing collection; zero values are omitted
type ListingQuery struct {
	City     string
	District string
	Query    string
	OwnerID  string
	Status   store.ListingStatus
	Sort     string
	Page     int
	Size     int
	MinPrice float64
	MaxPrice float64

	Rooms      int
	OfferType  string
	Brand      string
	Fuel       string
	Gear       string
	MinYear    int
	MaxYear    int
	MaxMileage int
	Zoning     string
	Type       string
	MinArea    float64
	MaxArea    float64
}

// Values encodes the query string
func (q ListingQuery) Values() url.Values {
	v := url.Values{}
	str := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	num := func(k string, n int) {
		if n > 0 {
			v.Set(k, strconv.Itoa(n))
		}
	}
	flt := func(k string, f float64) {
		if f > 0 {
			v.Set(k, strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	str("city", q.City)
	str("district", q.District)
	str("q", q.Query)
	str("ownerId", q.OwnerID)
	str("status", string(q.Status))
	str("sort", q.Sort)
	num("page", q.Page)
	num("size", q.Size)
	flt("minPrice", q.MinPrice)
	flt("maxPrice", q.MaxPrice)
	num("rooms", q.Rooms)
	str("offerType", q.OfferType)
	str("brand", q.Brand)
	str("fuel", q.Fuel)
	str("gear", q.Gear)
	num("minYear", q.MinYear)
	num("maxYear", q.MaxYear)
	num("maxMileage", q.MaxMileage)
	str("zoning", q.Zoning)
	str("type", q.Type)
	flt("minArea", q.MinArea)
	flt("maxArea", q.MaxArea)
	return v
}

// ListingService wraps the REST collection of one category
type ListingService struct {
	c        *Client
	category store.Category
}

// Listings returns the service for category c
func (c *Client) Listings(category store.Category) *ListingService {
	return &ListingService{c: c, category: category}
}

// RealEstates is the real estate collection
func (c *Client) RealEstates() *ListingService { return c.Listings(store.CategoryRealEstate) }

// Vehicles is the vehicle collection
func (c *Client) Vehicles() *ListingService { return c.Listings(store.CategoryVehicle) }

// Lands is the land collection
func (c *Client) Lands() *ListingService { return c.Listings(store.CategoryLand) }

// Workplaces is the workplace collection
func (c *Client) Workplaces() *ListingService { return c.Listings(store.CategoryWorkplace) }

func (s *ListingService) path(parts ...string) string {
	p := "/" + s.category.PathSegment()
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// List runs a filtered query
func (s *ListingService) List(ctx context.Context, q ListingQuery) (*store.ListingPage, error) {
	var page store.ListingPage
	if err := s.c.get(ctx, s.path(), q.Values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches one listing; the server counts it as a view
func (s *ListingService) Get(ctx context.Context, id string) (*store.Listing, error) {
	var l store.Listing
	if err := s.c.get(ctx, s.path(id), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Create posts a new listing owned by the caller
func (s *ListingService) Create(ctx context.Context, in store.ListingInput) (*store.Listing, error) {
	var l store.Listing
	if err := s.c.send(ctx, http.MethodPost, s.path(), in, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Update replaces the writable fields of a listing
func (s *ListingService) Update(ctx context.Context, id string, in store.ListingInput) (*store.Listing, error) {
	var l store.Listing
	if err := s.c.send(ctx, http.MethodPut, s.path(id), in, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Delete removes a listing
func (s *ListingService) Delete(ctx context.Context, id string) error {
	return s.c.send(ctx, http.MethodDelete, s.path(id), nil, nil)
}

// UploadImage sends an image file as multipart field "image"
func (s *ListingService) UploadImage(ctx context.Context, id, filename string, r io.Reader) (*store.Listing, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	var l store.Listing
	err = s.c.do(ctx, request{
		method:      http.MethodPost,
		path:        s.path(id, "images"),
		raw:         &buf,
		contentType: mw.FormDataContentType(),
	}, &l)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// RemoveImage drops an image by URL
func (s *ListingService) RemoveImage(ctx context.Context, id, imageURL string) (*store.Listing, error) {
	var l store.Listing
	err := s.c.do(ctx, request{
		method: http.MethodDelete,
		path:   s.path(id, "images"),
		query:  url.Values{"url": {imageURL}},
	}, &l)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// MyListings returns the caller's listings across categories
func (c *Client) MyListings(ctx context.Context, q ListingQuery) (*store.ListingPage, error) {
	var page store.ListingPage
	if err := c.get(ctx, "/users/me/listings", q.Values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}
