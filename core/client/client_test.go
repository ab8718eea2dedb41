package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contextKey string

func echoRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Authorization", r.Header.Get("Authorization"))
		w.Header().Set("X-Tenant", r.Header.Get("X-Tenant"))
		if v, ok := r.Context().Value(contextKey("k")).(string); ok {
			w.Header().Set("X-Context", v)
		}
		io.WriteString(w, `{"ok":true}`)
	}).Methods(http.MethodGet)
	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.Copy(w, r.Body)
	}).Methods(http.MethodPost)
	router.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, `{"message":"short and stout"}`)
	})
	return router
}

func TestClient_Router(t *testing.T) {
	ctx := context.WithValue(context.Background(), contextKey("k"), "v")
	c := NewWithRouter(echoRouter()).WithToken("abc").WithHeader("X-Tenant", "north").WithContext(ctx)

	var result struct {
		OK bool `json:"ok"`
	}
	status, header, err := c.RawGetWithHeader("/echo", nil, &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, result.OK)
	assert.Equal(t, "Bearer abc", header.Get("X-Authorization"))
	assert.Equal(t, "north", header.Get("X-Tenant"))
	assert.Equal(t, "v", header.Get("X-Context"))

	var raw []byte
	status, err = c.RawPost("/echo", map[string]int{"a": 1}, &raw)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	status, err = c.RawGet("/teapot", nil)
	assert.Error(t, err)
	assert.Equal(t, http.StatusTeapot, status)

	var message map[string]string
	status, _, err = c.Do(http.MethodGet, "/teapot", nil, nil, &message)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, status)
	assert.Equal(t, "short and stout", message["message"])
}

func TestClient_WithHeaderDoesNotLeak(t *testing.T) {
	base := NewWithRouter(echoRouter())
	_ = base.WithHeader("X-Tenant", "north")

	_, header, err := base.RawGetWithHeader("/echo", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, header.Get("X-Tenant"))
}

func TestClient_URL(t *testing.T) {
	srv := httptest.NewServer(echoRouter())
	defer srv.Close()

	c := NewWithURL(srv.URL + "/").WithToken("xyz")
	_, header, err := c.RawGetWithHeader("/echo", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", header.Get("X-Authorization"))

	status, err := c.RawPost("/echo", []byte(`[1,2]`), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
}
