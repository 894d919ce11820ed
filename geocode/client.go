// Package geocode resolves coordinates to street addresses over HTTP.
// The endpoint follows the Nominatim reverse API:
//
//	GET {baseURL}/reverse?format=jsonv2&lat=..&lon=..
//	200 {"display_name": "Av. Paulista, 1000, São Paulo"}
//
// Results are best effort; callers keep going without an address.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/warp/timeclock/generic"
)

const userAgent = "timeclock/1.0"

// Client implements attendance.Geocoder.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Reverse returns the display address for c.
func (c *Client) Reverse(ctx context.Context, coord generic.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(coord.Lon, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocoding returned %s", resp.Status)
	}

	var result struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("reverse geocoding: %s", result.Error)
	}
	return result.DisplayName, nil
}
