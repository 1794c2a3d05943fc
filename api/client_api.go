// Package api - Endpunkt-Methoden des Clients.
package api

import (
	"context"
	"net/http"
	"net/url"
	"path"
)

// Heartbeat prueft, ob der Server erreichbar ist
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil, nil)
}

// Version gibt die Server-Version zurueck
func (c *Client) Version(ctx context.Context) (string, error) {
	var v VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, nil, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// MSSSIM vergleicht zwei Bilder auf dem Server
func (c *Client) MSSSIM(ctx context.Context, req *MSSSIMRequest) (*MSSSIMResponse, error) {
	var resp MSSSIMResponse
	if err := c.do(ctx, http.MethodPost, "/api/msssim", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Analyze fuehrt einen Pipeline-Schritt mit den Referenz-Tuermen aus
func (c *Client) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	var resp AnalyzeResponse
	if err := c.do(ctx, http.MethodPost, "/api/analyze", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Runs listet die gespeicherten Laeufe
func (c *Client) Runs(ctx context.Context) (*RunsResponse, error) {
	var resp RunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scalars gibt die Werte eines Tags fuer einen Lauf zurueck
func (c *Client) Scalars(ctx context.Context, run, tag string) (*ScalarsResponse, error) {
	var resp ScalarsResponse
	q := url.Values{}
	if tag != "" {
		q.Set("tag", tag)
	}
	if err := c.do(ctx, http.MethodGet, path.Join("/api/runs", run, "scalars"), q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
