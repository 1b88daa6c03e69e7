// Package storefront is a typed client for the storefront endpoints the
// payment page depends on: ads, cart count, weather and shipping addresses.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected storefront status")
	ErrUnsuccessful     = errors.New("storefront reported failure")
)

type AdProduct struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
	ImageURL    string `json:"imagen_url"`
	DetailURL   string `json:"detail_url"`
}

type Ads struct {
	Success  bool        `json:"success"`
	Company  string      `json:"company"`
	Products []AdProduct `json:"ad_products"`
}

type Weather struct {
	Temperature     float64 `json:"temperature"`
	TemperatureUnit string  `json:"temperature_unit"`
	Description     string  `json:"description"`
	WeatherCode     int     `json:"weathercode"`
	IsDay           bool    `json:"is_day"`
	WindSpeed       float64 `json:"windspeed"`
	WindSpeedUnit   string  `json:"windspeed_unit"`
}

type Location struct {
	City string `json:"city"`
}

type WeatherReport struct {
	Success  bool     `json:"success"`
	Weather  Weather  `json:"weather"`
	Location Location `json:"location"`
	Error    string   `json:"error,omitempty"`
}

// Address is a shopper shipping address as the address form posts it.
type Address struct {
	Street          string
	City            string
	StateOrProvince string
	PostalCode      string
}

func (a Address) values() url.Values {
	return url.Values{
		"street":            {a.Street},
		"city":              {a.City},
		"state_or_province": {a.StateOrProvince},
		"postal_code":       {a.PostalCode},
	}
}

// AddressResult is the reply of the address endpoints. Errors maps form
// fields to their messages when Success is false.
type AddressResult struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	// token is forwarded as the shopper's bearer credential.
	token string
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			// login_required views redirect to the HTML login page; surface the 302
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// WithToken returns a copy of c that authenticates as the given shopper.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// address endpoints answer 400 with a JSON error body
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, req.URL.Path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response from %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusBadRequest {
		c.logger.Debug("Storefront rejected request", zap.String("path", req.URL.Path))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) Ads(ctx context.Context) (*Ads, error) {
	var ads Ads
	if err := c.getJSON(ctx, "/api/ads/", nil, &ads); err != nil {
		return nil, err
	}
	if !ads.Success {
		return nil, fmt.Errorf("%w: ads", ErrUnsuccessful)
	}
	return &ads, nil
}

func (c *Client) CartCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, "/orders/cart-count/", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Weather(ctx context.Context, lat, lng float64) (*WeatherReport, error) {
	query := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lng": {strconv.FormatFloat(lng, 'f', -1, 64)},
	}
	var report WeatherReport
	if err := c.getJSON(ctx, "/api/weather/", query, &report); err != nil {
		return nil, err
	}
	if !report.Success {
		return nil, fmt.Errorf("%w: weather: %s", ErrUnsuccessful, report.Error)
	}
	return &report, nil
}

func (c *Client) CreateAddress(ctx context.Context, addr Address) (*AddressResult, error) {
	var res AddressResult
	if err := c.postForm(ctx, "/accounts/addresses/add/", addr.values(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) EditAddress(ctx context.Context, id int, addr Address) (*AddressResult, error) {
	var res AddressResult
	if err := c.postForm(ctx, fmt.Sprintf("/accounts/addresses/%d/edit/", id), addr.values(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteAddress(ctx context.Context, id int) (*AddressResult, error) {
	var res AddressResult
	if err := c.postForm(ctx, fmt.Sprintf("/accounts/addresses/%d/delete/", id), url.Values{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping checks the storefront answers on its public ads endpoint. Any reply
// below 500 counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ads/", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w %d from %s", ErrUnexpectedStatus, resp.StatusCode, req.URL.Path)
	}
	return nil
}
