package grafana

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// The render endpoint is served by grafana-image-renderer and is not part of
// the OpenAPI surface, so it is reached over the raw transport. The health
// probe shares the same bearer transport.

func (c *Client) do(path string, params url.Values) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// HTTPError is a non-2xx response from the raw transport.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Code reports the HTTP status, mirroring the OpenAPI runtime errors so both
// transports translate uniformly.
func (e *HTTPError) Code() int { return e.StatusCode }

// RenderPanel renders one panel as a PNG image.
func (c *Client) RenderPanel(uid string, panelID int64, width, height int, from, to string) ([]byte, error) {
	params := url.Values{}
	params.Set("panelId", strconv.FormatInt(panelID, 10))
	params.Set("width", strconv.Itoa(width))
	params.Set("height", strconv.Itoa(height))
	params.Set("from", from)
	params.Set("to", to)

	resp, err := c.do("/render/d-solo/"+url.PathEscape(uid)+"/", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// Health probes the cluster health endpoint.
func (c *Client) Health() (*Health, error) {
	resp, err := c.do("/api/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &health, nil
}
