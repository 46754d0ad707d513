package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Nominatim reverse-geocodes through an OpenStreetMap Nominatim endpoint.
// Requests are limited to one per second as the public usage policy requires.
type Nominatim struct {
	endpoint  string
	userAgent string
	language  string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewNominatim creates a geocoder for endpoint, e.g. https://nominatim.openstreetmap.org/reverse
func NewNominatim(endpoint, userAgent string, timeout time.Duration) *Nominatim {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Nominatim{
		endpoint:  endpoint,
		userAgent: userAgent,
		language:  "en",
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse returns the display name for the coordinates
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	u, err := url.Parse(n.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid geocode url: %w", err)
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept-Language", n.language)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed nominatimResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("geocoder error: %s", parsed.Error)
	}
	return parsed.DisplayName, nil
}
