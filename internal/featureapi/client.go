// Package featureapi talks to the municipal Features API: bbox feature
// queries and zonal aggregation.
package featureapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/core/observability"
)

type Query struct {
	Layer    string
	Endpoint string
	Table    string
	BBox     model.BBox
	Limit    int
	Offset   int
}

// Fetcher returns decoded features for a query.
type Fetcher interface {
	Features(ctx context.Context, q Query) (*geojson.FeatureCollection, error)
}

// RawFetcher returns the undecoded response body.
type RawFetcher interface {
	FetchRaw(ctx context.Context, q Query) ([]byte, error)
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("features api status %d: %s", e.Status, e.Body)
}

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	base     *url.URL
	startNow func() time.Time
}

func New(logger *slog.Logger, client *http.Client, base string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse features api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("features api url %q must be absolute", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{logger: logger, client: client, base: u, startNow: time.Now}, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = params.Encode()
	return u.String()
}

// Params renders bbox, limit, offset and table the way the API expects.
func Params(q Query) url.Values {
	v := url.Values{}
	v.Set("bbox", q.BBox.String())
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
		v.Set("offset", strconv.Itoa(max(q.Offset, 0)))
	}
	if q.Table != "" {
		v.Set("table", q.Table)
	}
	return v
}

func (c *Client) FetchRaw(ctx context.Context, q Query) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(q.Endpoint, Params(q)), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	start := c.startNow()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveUpstreamLatency("features_api", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c.logger != nil {
		c.logger.DebugContext(ctx, "features fetched",
			"endpoint", q.Endpoint, "bbox", q.BBox.String(), "limit", q.Limit,
			"offset", q.Offset, "bytes", len(b), "duration", time.Since(start))
	}
	return b, nil
}

func (c *Client) Features(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	b, err := c.FetchRaw(ctx, q)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Decode parses a FeatureCollection body. Anything else is an error.
func Decode(b []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode feature collection: unexpected type %q", fc.Type)
	}
	return fc, nil
}

func (c *Client) FeaturesAll(ctx context.Context, q Query, pageSize int) (*geojson.FeatureCollection, error) {
	return All(ctx, c, q, pageSize)
}

// All pages through q with offset until a short or empty page, or until
// q.Limit features have been read when q.Limit > 0.
func All(ctx context.Context, f Fetcher, q Query, pageSize int) (*geojson.FeatureCollection, error) {
	if pageSize <= 0 {
		return f.Features(ctx, q)
	}
	out := geojson.NewFeatureCollection()
	offset := max(q.Offset, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := pageSize
		if q.Limit > 0 {
			want = min(pageSize, q.Limit-len(out.Features))
			if want <= 0 {
				return out, nil
			}
		}
		page := q
		page.Limit, page.Offset = want, offset
		fc, err := f.Features(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		out.Features = append(out.Features, fc.Features...)
		offset += len(fc.Features)
		if len(fc.Features) < want {
			return out, nil
		}
	}
}

// ZonalStats is the aggregate object returned by a zonal query.
type ZonalStats map[string]any

func (z ZonalStats) Float(key string) (float64, bool) {
	switch v := z[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (z ZonalStats) Count() int {
	f, _ := z.Float("count")
	return int(f)
}

// Zonal posts {"geometry": g} to endpoint and returns the statistics.
func (c *Client) Zonal(ctx context.Context, endpoint, table string, g orb.Geometry) (ZonalStats, error) {
	if g == nil {
		return nil, errors.New("zonal geometry is required")
	}
	body, err := json.Marshal(map[string]any{"geometry": geojson.NewGeometry(g)})
	if err != nil {
		return nil, fmt.Errorf("encode zonal body: %w", err)
	}
	params := url.Values{}
	if table != "" {
		params.Set("table", table)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(endpoint, params), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := c.startNow()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("features_api_zonal", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var out ZonalStats
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode zonal stats: %w", err)
	}
	return out, nil
}
