package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"vesta/internal/store"
)

// imageTypes maps accepted upload content types to file extensions
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func invalidParam(name, value string) error {
	return fmt.Errorf("invalid %s %q: %w", name, value, store.ErrInvalid)
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalidParam(name, v)
	}
	return n, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return nil, invalidParam(name, v)
	}
	return &f, nil
}

// parseFilter reads a ListingFilter from the query string
func parseFilter(q url.Values) (store.ListingFilter, error) {
	f := store.ListingFilter{
		City:          q.Get("city"),
		District:      q.Get("district"),
		Query:         q.Get("q"),
		OwnerID:       q.Get("ownerId"),
		OfferType:     q.Get("offerType"),
		Brand:         q.Get("brand"),
		Fuel:          q.Get("fuel"),
		Gear:          q.Get("gear"),
		Zoning:        q.Get("zoning"),
		WorkplaceType: q.Get("type"),
	}

	switch s := q.Get("sort"); s {
	case "", store.SortNewest, store.SortOldest, store.SortPriceAsc, store.SortPriceDesc:
		f.Sort = s
	default:
		return f, invalidParam("sort", s)
	}

	switch s := store.ListingStatus(q.Get("status")); s {
	case "", store.StatusActive, store.StatusPassive, store.StatusSold:
		f.Status = s
	default:
		return f, invalidParam("status", string(s))
	}

	var err error
	ints := []struct {
		name string
		dst  *int
	}{
		{"page", &f.Page},
		{"size", &f.Size},
		{"rooms", &f.MinRooms},
		{"minYear", &f.MinYear},
		{"maxYear", &f.MaxYear},
		{"maxMileage", &f.MaxMileage},
	}
	for _, p := range ints {
		if *p.dst, err = intParam(q, p.name); err != nil {
			return f, err
		}
	}

	floats := []struct {
		name string
		dst  **float64
	}{
		{"minPrice", &f.MinPrice},
		{"maxPrice", &f.MaxPrice},
		{"minArea", &f.MinArea},
		{"maxArea", &f.MaxArea},
	}
	for _, p := range floats {
		if *p.dst, err = floatParam(q, p.name); err != nil {
			return f, err
		}
	}
	return f, nil
}

// ListListings serves GET /{category}
// @Summary List listings of a category
// @Tags listings
// @Produce json
// @Param category path string true "real-estates, vehicles, lands or workplaces"
// @Param q query string false "Free text, accent-insensitive"
// @Param sort query string false "newest, oldest, price_asc, price_desc"
// @Success 200 {object} store.ListingPage
// @Router /{category} [get]
func (a *API) ListListings(c store.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r.URL.Query())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		f.Category = c
		writeJSON(w, http.StatusOK, a.store.ListListings(f))
	}
}

// CreateListing serves POST /{category}
func (a *API) CreateListing(c store.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in store.ListingInput
		if err := decodeJSON(r, &in); err != nil {
			a.fail(w, r, err)
			return
		}
		l, err := a.store.CreateListing(principal(r).UserID, c, in)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

// listingIn loads the routed listing and hides listings of other categories
func (a *API) listingIn(c store.Category, r *http.Request) (*store.Listing, error) {
	id := mux.Vars(r)["id"]
	l, err := a.store.Listing(id)
	if err != nil {
		return nil, err
	}
	if l.Category != c {
		return nil, fmt.Errorf("%s %s: %w", c, id, store.ErrNotFound)
	}
	return l, nil
}

// GetListing serves GET /{category}/{id} and counts the view
func (a *API) GetListing(c store.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.listingIn(c, r); err != nil {
			a.fail(w, r, err)
			return
		}
		l, err := a.store.ViewListing(mux.Vars(r)["id"])
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// UpdateListing serves PUT /{category}/{id}
func (a *API) UpdateListing(c store.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.listingIn(c, r); err != nil {
			a.fail(w, r, err)
			return
		}
		var in store.ListingInput
		if err := decodeJSON(r, &in); err != nil {
			a.fail(w, r, err)
			return
		}
		p := principal(r)
		l, err := a.store.UpdateListing(p.UserID, p.IsAdmin(), mux.Vars(r)["id"], in)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// DeleteListing serves DELETE /{category}/{id}
func (a *API) DeleteListing(c store.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.listingIn(c, r); err != nil {
			a.fail(w, r, err)
			return
		}
		p := principal(r)
		l, err := a.store.DeleteListing(p.UserID, p.IsAdmin(), mux.Vars(r)["id"])
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.removeUploads(l.Images)
		w.WriteHeader(http.StatusNoContent)
	}
}

// UploadImage serves POST /{category}/{id}/images (multipart field "image")
func (a *API) UploadImage(c store.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := a.listingIn(c, r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		p := principal(r)
		if l.OwnerID != p.UserID && !p.IsAdmin() {
			a.fail(w, r, fmt.Errorf("listing %s belongs to another user: %w", l.ID, store.ErrForbidden))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, a.cfg.Server.MaxUploadSize)
		if err := r.ParseMultipartForm(a.cfg.Server.MaxUploadSize); err != nil {
			a.fail(w, r, fmt.Errorf("image larger than %d bytes or not multipart: %w", a.cfg.Server.MaxUploadSize, store.ErrInvalid))
			return
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			a.fail(w, r, fmt.Errorf("multipart field \"image\" is required: %w", store.ErrInvalid))
			return
		}
		defer file.Close()

		name, err := a.saveUpload(file)
		if err != nil {
			a.fail(w, r, err)
			return
		}

		updated, err := a.store.AddImage(p.UserID, p.IsAdmin(), l.ID, a.cfg.Server.PublicURL+"/uploads/"+name)
		if err != nil {
			os.Remove(filepath.Join(a.cfg.Server.UploadDir, name))
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, updated)
	}
}

// saveUpload sniffs the content type and writes the file under UploadDir
func (a *API) saveUpload(src io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read upload: %w", store.ErrInvalid)
	}
	head = head[:n]

	ext, ok := imageTypes[http.DetectContentType(head)]
	if !ok {
		return "", fmt.Errorf("only jpeg, png, gif and webp images are accepted: %w", store.ErrInvalid)
	}

	if err := os.MkdirAll(a.cfg.Server.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(a.cfg.Server.UploadDir, name))
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer dst.Close()

	if _, err := dst.Write(head); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	return name, nil
}

// removeUploads deletes files that were served from /uploads/
func (a *API) removeUploads(urls []string) {
	for _, u := range urls {
		_, name, ok := strings.Cut(u, "/uploads/")
		if !ok || name == "" || strings.ContainsAny(name, `/\`) {
			continue
		}
		if err := os.Remove(filepath.Join(a.cfg.Server.UploadDir, name)); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("remove upload", "file", name, "error", err)
		}
	}
}

// RemoveImage serves DELETE /{category}/{id}/images?url=...
func (a *API) RemoveImage(c store.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.listingIn(c, r); err != nil {
			a.fail(w, r, err)
			return
		}
		image := r.URL.Query().Get("url")
		if image == "" {
			a.fail(w, r, fmt.Errorf("url query parameter is required: %w", store.ErrInvalid))
			return
		}
		p := principal(r)
		l, err := a.store.RemoveImage(p.UserID, p.IsAdmin(), mux.Vars(r)["id"], image)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.removeUploads([]string{image})
		writeJSON(w, http.StatusOK, l)
	}
}

// MyListings serves GET /users/me/listings: every category and status
func (a *API) MyListings(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f.OwnerID = principal(r).UserID
	f.AnyStatus = f.Status == ""
	writeJSON(w, http.StatusOK, a.store.ListListings(f))
}
