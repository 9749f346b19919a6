package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/matthewjhunter/coviddash/internal/storage"
)

type lookupRecord struct {
	LSOA          string `json:"lsoa"`
	LSOAName      string `json:"lsoaName"`
	MSOA          string `json:"msoa"`
	MSOAName      string `json:"msoaName"`
	LTLA          string `json:"ltla"`
	LTLAName      string `json:"ltlaName"`
	UTLA          string `json:"utla"`
	UTLAName      string `json:"utlaName"`
	Region        string `json:"region"`
	RegionName    string `json:"regionName"`
	Nation        string `json:"nation"`
	NationName    string `json:"nationName"`
	NHSRegion     string `json:"nhsRegion"`
	NHSRegionName string `json:"nhsRegionName"`
	NHSTrust      string `json:"nhsTrust"`
	NHSTrustName  string `json:"nhsTrustName"`
}

// FetchLookup resolves code within category (postcode, lsoa, msoa, ltla...)
// to the areas that contain it. It returns storage.ErrNotFound when the API
// has no match.
func (c *Client) FetchLookup(ctx context.Context, category, code string) (*storage.AreaLookup, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("search", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/code", params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup %s %s: %w", category, code, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, storage.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("lookup %s %s returned status %d", category, code, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup %s: %w", code, err)
	}

	rec, err := decodeLookup(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode lookup %s: %w", code, err)
	}
	if rec == nil || *rec == (lookupRecord{}) {
		return nil, storage.ErrNotFound
	}

	return &storage.AreaLookup{
		Code:          code,
		LSOA:          rec.LSOA,
		LSOAName:      c.cleanName(rec.LSOAName),
		MSOA:          rec.MSOA,
		MSOAName:      c.cleanName(rec.MSOAName),
		LTLA:          rec.LTLA,
		LTLAName:      c.cleanName(rec.LTLAName),
		UTLA:          rec.UTLA,
		UTLAName:      c.cleanName(rec.UTLAName),
		Region:        rec.Region,
		RegionName:    c.cleanName(rec.RegionName),
		Nation:        rec.Nation,
		NationName:    c.cleanName(rec.NationName),
		NHSRegion:     rec.NHSRegion,
		NHSRegionName: c.cleanName(rec.NHSRegionName),
		NHSTrust:      rec.NHSTrust,
		NHSTrustName:  c.cleanName(rec.NHSTrustName),
	}, nil
}

// decodeLookup accepts either a single object or an array of objects and
// returns the first record, or nil for an empty body.
func decodeLookup(body []byte) (*lookupRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '[' {
		var recs []lookupRecord
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, nil
		}
		return &recs[0], nil
	}
	var rec lookupRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
