// Package geocode resolves listing addresses to coordinates, once, right
// after an entry is created.
package geocode

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

	"github.com/shalom-dev-bot/astremina/internal/scrape/util"
)

// ErrMiss means the service answered but knows no such place.
var ErrMiss = errors.New("geocode: no match")

type Point struct {
	Lat float64
	Lon float64
}

type Resolver interface {
	Resolve(ctx context.Context, query string) (Point, error)
}

type Config struct {
	BaseURL   string
	UserAgent string
	// Email is sent along as Nominatim's usage policy asks for bulk clients.
	Email   string
	Timeout time.Duration
}

// Nominatim queries an OpenStreetMap Nominatim /search endpoint.
type Nominatim struct {
	cfg Config
	hc  *http.Client
	lim *util.HostLimiter
}

func NewNominatim(cfg Config, lim *util.HostLimiter) *Nominatim {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Nominatim{cfg: cfg, hc: &http.Client{Timeout: cfg.Timeout}, lim: lim}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (n *Nominatim) Resolve(ctx context.Context, query string) (Point, error) {
	u, err := url.Parse(n.cfg.BaseURL + "/search")
	if err != nil {
		return Point{}, fmt.Errorf("geocode base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")
	if n.cfg.Email != "" {
		q.Set("email", n.cfg.Email)
	}
	u.RawQuery = q.Encode()

	if err := n.lim.WaitHost(ctx, u.Host); err != nil {
		return Point{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Point{}, err
	}
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.hc.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("geocode %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Point{}, fmt.Errorf("geocode %q: unexpected status %d", query, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return Point{}, fmt.Errorf("geocode %q: decode: %w", query, err)
	}
	if len(places) == 0 {
		return Point{}, ErrMiss
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return Point{}, fmt.Errorf("geocode %q: bad coordinates %q,%q", query, places[0].Lat, places[0].Lon)
	}
	return Point{Lat: lat, Lon: lon}, nil
}
