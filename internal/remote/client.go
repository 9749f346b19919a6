package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/microcosm-cc/bluemonday"
)

// maxPages bounds pagination so a looping "next" link cannot spin forever.
const maxPages = 500

// Client fetches daily records and area lookups from the UK coronavirus API.
type Client struct {
	baseURL   *url.URL
	client    *http.Client
	userAgent string
	policy    *bluemonday.Policy
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, userAgent string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if userAgent == "" {
		userAgent = "coviddash/1.0"
	}
	return &Client{
		baseURL:   u,
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		policy:    bluemonday.StrictPolicy(),
	}, nil
}

// FetchResult holds the outcome of a conditional fetch.
type FetchResult struct {
	Records     []storage.DailyRecord // nil when NotModified is true
	Freshness   time.Time             // upstream Last-Modified of the first page
	NotModified bool                  // true when the server returned 304 or 204
}

type page struct {
	Data       []record `json:"data"`
	Pagination struct {
		Next *string `json:"next"`
	} `json:"pagination"`
}

type record struct {
	AreaCode        string   `json:"areaCode"`
	AreaName        string   `json:"areaName"`
	AreaType        string   `json:"areaType"`
	Date            string   `json:"date"`
	NewValue        *int     `json:"newValue"`
	CumulativeValue *int     `json:"cumulativeValue"`
	Rate            *float64 `json:"rate"`
}

// Fetch retrieves every page for q. If ifModifiedSince is non-zero it is sent
// as If-Modified-Since on the first page, and a 304 or 204 response returns
// NotModified=true without reading a body. A failure on any page fails the
// whole fetch.
func (c *Client) Fetch(ctx context.Context, q Query, ifModifiedSince time.Time) (*FetchResult, error) {
	structure, err := q.structure()
	if err != nil {
		return nil, fmt.Errorf("failed to build structure for %s: %w", q, err)
	}
	params := url.Values{}
	params.Set("filters", q.filters())
	params.Set("structure", structure)
	params.Set("format", "json")
	if lb := q.latestBy(); lb != "" {
		params.Set("latestBy", lb)
	}
	next := c.endpoint("/v1/data", params)

	result := &FetchResult{}
	for n := 0; next != ""; n++ {
		if n >= maxPages {
			return nil, fmt.Errorf("fetch %s: more than %d pages", q, maxPages)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request for %s: %w", q, err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if n == 0 && !ifModifiedSince.IsZero() {
			req.Header.Set("If-Modified-Since", ifModifiedSince.UTC().Format(http.TimeFormat))
		}

		p, header, status, err := c.getPage(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", q, n+1, err)
		}
		if n == 0 {
			if status == http.StatusNotModified || status == http.StatusNoContent {
				return &FetchResult{NotModified: true}, nil
			}
			lm := header.Get("Last-Modified")
			if lm == "" {
				return nil, fmt.Errorf("fetch %s: response has no Last-Modified header", q)
			}
			result.Freshness, err = http.ParseTime(lm)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: bad Last-Modified %q: %w", q, lm, err)
			}
		} else if p == nil {
			return nil, fmt.Errorf("fetch %s page %d: unexpected status %d", q, n+1, status)
		}

		for _, r := range p.Data {
			dr, err := c.convert(r, q)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", q, err)
			}
			result.Records = append(result.Records, dr)
		}

		next = ""
		if p.Pagination.Next != nil && *p.Pagination.Next != "" {
			next, err = c.resolve(*p.Pagination.Next)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", q, err)
			}
		}
	}
	return result, nil
}

// getPage performs one request. A nil page with a nil error means the server
// answered 304 or 204.
func (c *Client) getPage(req *http.Request) (*page, http.Header, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified || resp.StatusCode == http.StatusNoContent {
		return nil, resp.Header, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, resp.StatusCode, fmt.Errorf("returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, nil, resp.StatusCode, fmt.Errorf("failed to decode body: %w", err)
	}
	return &p, resp.Header, resp.StatusCode, nil
}

func (c *Client) convert(r record, q Query) (storage.DailyRecord, error) {
	dr := storage.DailyRecord{
		AreaCode: strings.TrimSpace(r.AreaCode),
		AreaName: c.cleanName(r.AreaName),
		AreaType: q.AreaType,
	}
	if dr.AreaCode == "" {
		return dr, errors.New("record without areaCode")
	}
	if r.AreaType != "" {
		if t, err := storage.ParseAreaType(r.AreaType); err == nil {
			dr.AreaType = t
		}
	}
	if q.Metric != MetricNone {
		d, err := storage.ParseDay(r.Date)
		if err != nil {
			return dr, fmt.Errorf("bad date for %s: %w", dr.AreaCode, err)
		}
		dr.Date = d
	}
	if r.NewValue != nil {
		dr.NewValue = *r.NewValue
	}
	if r.CumulativeValue != nil {
		dr.CumulativeValue = *r.CumulativeValue
	}
	if r.Rate != nil {
		dr.Rate = *r.Rate
	}
	return dr, nil
}

// cleanName strips any markup from an upstream display name.
func (c *Client) cleanName(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()
	return u.String()
}

// resolve turns a pagination link, usually host-relative, into an absolute URL.
func (c *Client) resolve(link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("bad pagination link %q: %w", link, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}
