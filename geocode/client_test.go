package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeclock/generic"
)

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "-23.561400", r.URL.Query().Get("lat"))
		assert.Equal(t, "-46.655900", r.URL.Query().Get("lon"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"display_name": "Av. Paulista, 1000"}`)
	}))
	defer srv.Close()

	addr, err := NewClient(srv.URL, time.Second).Reverse(context.Background(), generic.Coordinate{Lat: -23.5614, Lon: -46.6559})
	require.NoError(t, err)
	assert.Equal(t, "Av. Paulista, 1000", addr)
}

func TestReverse_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"payload error": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error": "Unable to geocode"}`)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			addr, err := NewClient(srv.URL, time.Second).Reverse(context.Background(), generic.Coordinate{})
			assert.Error(t, err)
			assert.Empty(t, addr)
		})
	}
}
