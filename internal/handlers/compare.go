package handlers

import (
	"fmt"
	"net/http"

	"vesta/internal/compare"
	"vesta/internal/store"
)

// CompareRequest is the body of POST /compare
type CompareRequest struct {
	IDs []string `json:"ids"`
}

// Compare builds a comparison table for 2 to 4 listings of one category
// @Summary Compare listings
// @Tags listings
// @Accept json
// @Produce json
// @Param body body CompareRequest true "Listing ids"
// @Success 200 {object} compare.Table
// @Failure 422 {object} ErrorResponse
// @Router /compare [post]
func (a *API) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if len(req.IDs) > compare.MaxItems {
		a.fail(w, r, fmt.Errorf("at most %d listings can be compared: %w", compare.MaxItems, store.ErrInvalid))
		return
	}
	listings, err := a.store.ListingsByIDs(req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	table, err := compare.BuildTable(listings)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}
