package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesta/internal/store"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", opts...)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "status": status})
}

func TestBearerToken(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(store.User{ID: "u1", Email: "a@b.test"})
	}, WithTokenSource(func() string { return "tok" }))

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "Bearer tok", got)
}

func TestNoTokenNoHeader(t *testing.T) {
	var got []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Values("Authorization")
		_ = json.NewEncoder(w).Encode(Health{Status: "healthy"})
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Empty(t, got)
}

func TestUnauthorizedHook(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "invalid token")
	}, WithOnUnauthorized(func() { calls++ }))

	_, err := c.Notifications(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, 1, calls)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid token", apiErr.Message)
	assert.Equal(t, "/notifications", apiErr.Path)
}

func TestLoginFailureSkipsHook(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	}, WithOnUnauthorized(func() { calls++ }))

	_, err := c.Login(context.Background(), "a@b.test", "wrong")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Zero(t, calls)
}

func TestForbiddenDoesNotFireHook(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusForbidden, "not the owner")
	}, WithOnUnauthorized(func() { calls++ }))

	err := c.Vehicles().Delete(context.Background(), "l1")
	require.Error(t, err)
	assert.Zero(t, calls)
	assert.Equal(t, "You are not allowed to do that.", UserMessage(err))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "Cannot reach the server. Check your connection.", UserMessage(err))
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Health(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		status int
		msg    string
		want   string
	}{
		{http.StatusNotFound, "", "The item you are looking for was not found."},
		{http.StatusUnprocessableEntity, "title is required", "Please check the form: some fields are invalid."},
		{http.StatusInternalServerError, "boom", "Something went wrong on our side. Please try again later."},
		{http.StatusBadGateway, "", "Something went wrong on our side. Please try again later."},
		{http.StatusConflict, "already favorited", "already favorited"},
		{http.StatusBadRequest, "", "Bad Request"},
	}
	for _, tt := range tests {
		err := &APIError{Status: tt.status, Message: tt.msg}
		assert.Equal(t, tt.want, UserMessage(err), "status %d", tt.status)
	}
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "Unexpected error.", UserMessage(errors.New("x")))
}

func TestListingQueryValues(t *testing.T) {
	q := ListingQuery{City: "İzmir", MinPrice: 1500.5, Page: 2, Fuel: "diesel", Status: store.StatusSold}
	v := q.Values()
	assert.Equal(t, "İzmir", v.Get("city"))
	assert.Equal(t, "1500.5", v.Get("minPrice"))
	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "diesel", v.Get("fuel"))
	assert.Equal(t, "sold", v.Get("status"))
	assert.False(t, v.Has("size"))
	assert.False(t, v.Has("maxPrice"))
	assert.Empty(t, ListingQuery{}.Values())
}

func TestListingServicePaths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(store.ListingPage{Total: 0})
	})
	ctx := context.Background()

	_, err := c.RealEstates().List(ctx, ListingQuery{Rooms: 3})
	require.NoError(t, err)
	_, err = c.Lands().List(ctx, ListingQuery{})
	require.NoError(t, err)
	_, err = c.Workplaces().RemoveImage(ctx, "w1", "http://x/uploads/a.png")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GET /real-estates?rooms=3",
		"GET /lands?",
		"DELETE /workplaces/w1/images?url=http%3A%2F%2Fx%2Fuploads%2Fa.png",
	}, paths)
}

func TestUploadImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vehicles/v1/images", r.URL.Path)
		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "car.png", hdr.Filename)
		assert.Equal(t, "pixels", string(data))
		_ = json.NewEncoder(w).Encode(store.Listing{ID: "v1", Images: []string{"/uploads/x.png"}})
	})

	l, err := c.Vehicles().UploadImage(context.Background(), "v1", "car.png", strings.NewReader("pixels"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/x.png"}, l.Images)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/notifications/read-all", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]int{"updated": 3})
	})

	n, err := c.MarkAllNotificationsRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/conversations/c1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.LeaveConversation(context.Background(), "c1"))
}

func TestCompareSendsIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"ids"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body.IDs)
		_, _ = w.Write([]byte(`{"category":"vehicle","columns":[],"rows":[],"lowestPriceId":"a"}`))
	})

	tbl, err := c.Compare(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, store.CategoryVehicle, tbl.Category)
}
