// Package geo resolves a city name from device coordinates or a client IP using public
// lookup services. Lookups are optional enrichment: the resolver never reports failures.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each lookup.
const DefaultTimeout = 10 * time.Second

// ErrNoCity is returned when a lookup succeeds but names no locality.
var ErrNoCity = errors.New("no city in response")

// Coordinates is a device position.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Place is a resolved locality.
type Place struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Locator resolves coordinates.
type Locator interface {
	Lookup(ctx context.Context, c Coordinates) (Place, error)
}

// IPLocator resolves an IP address.
type IPLocator interface {
	LookupIP(ctx context.Context, ip string) (Place, error)
}

// NominatimClient queries an OpenStreetMap Nominatim reverse endpoint.
type NominatimClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewNominatimClient creates a new NominatimClient. Nominatim rejects requests without
// an identifying User-Agent.
func NewNominatimClient(baseURL, userAgent string, client *http.Client) *NominatimClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &NominatimClient{baseURL: strings.TrimRight(baseURL, "/"), userAgent: userAgent, client: client}
}

type nominatimResponse struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		Country      string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

// Lookup returns the place at c.
func (n *NominatimClient) Lookup(ctx context.Context, c Coordinates) (Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.Longitude, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("accept-language", "fr")

	var out nominatimResponse
	if err := getJSON(ctx, n.client, n.baseURL+"/reverse?"+q.Encode(), n.userAgent, &out); err != nil {
		return Place{}, err
	}
	if out.Error != "" {
		return Place{}, fmt.Errorf("nominatim: %s", out.Error)
	}

	a := out.Address
	place := Place{City: firstNonEmpty(a.City, a.Town, a.Village, a.Municipality), Country: a.Country}
	if place.City == "" {
		return place, ErrNoCity
	}
	return place, nil
}

// IPAPIClient queries an ipapi.co style endpoint.
type IPAPIClient struct {
	baseURL string
	client  *http.Client
}

// NewIPAPIClient creates a new IPAPIClient.
func NewIPAPIClient(baseURL string, client *http.Client) *IPAPIClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &IPAPIClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type ipapiResponse struct {
	City        string `json:"city"`
	CountryName string `json:"country_name"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// LookupIP returns the place of ip. An empty ip asks about the caller's own address.
func (c *IPAPIClient) LookupIP(ctx context.Context, ip string) (Place, error) {
	endpoint := c.baseURL + "/json/"
	if ip != "" {
		endpoint = c.baseURL + "/" + url.PathEscape(ip) + "/json/"
	}

	var out ipapiResponse
	if err := getJSON(ctx, c.client, endpoint, "", &out); err != nil {
		return Place{}, err
	}
	if out.Error {
		return Place{}, fmt.Errorf("ipapi: %s", out.Reason)
	}
	if out.City == "" {
		return Place{Country: out.CountryName}, ErrNoCity
	}
	return Place{City: out.City, Country: out.CountryName}, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint, userAgent string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lookup failed: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode lookup response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Resolver combines a coordinate and an IP lookup.
type Resolver struct {
	coords  Locator
	ip      IPLocator
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver creates a new Resolver. Either locator may be nil.
func NewResolver(coords Locator, ip IPLocator, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{coords: coords, ip: ip, timeout: timeout, logger: logger}
}

// CityFor tries coordinates first, then ip. It returns "" when neither yields a city.
func (r *Resolver) CityFor(ctx context.Context, c *Coordinates, ip string) string {
	if c != nil && r.coords != nil {
		lctx, cancel := context.WithTimeout(ctx, r.timeout)
		place, err := r.coords.Lookup(lctx, *c)
		cancel()
		if err == nil {
			return place.City
		}
		r.logger.Debug("coordinate lookup failed", zap.Error(err))
	}

	if r.ip != nil {
		lctx, cancel := context.WithTimeout(ctx, r.timeout)
		place, err := r.ip.LookupIP(lctx, ip)
		cancel()
		if err == nil {
			return place.City
		}
		r.logger.Debug("ip lookup failed", zap.String("ip", ip), zap.Error(err))
	}
	return ""
}
