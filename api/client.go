// Package api - Client fuer den aegan-Server.
// Dieses Modul enthaelt die Client-Struktur und die Basis-Methoden,
// die Endpunkt-Methoden liegen in client_api.go.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/ollama/aegan/envconfig"
	"github.com/ollama/aegan/version"
)

// Client kapselt die Verbindung zum Server. Neue Clients ueber
// [ClientFromEnvironment] oder [NewClient] erzeugen.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := json.Unmarshal(body, &apiError); err != nil {
		// Body als Nachricht verwenden, wenn er kein JSON ist
		apiError.ErrorMessage = string(body)
	}
	return apiError
}

// ClientFromEnvironment erzeugt einen Client fuer AEGAN_HOST:
//
//	<scheme>://<host>:<port>
//
// Ohne Variable wird http://127.0.0.1:11500 verwendet.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

// maxResponse begrenzt gelesene Antworten; Rekonstruktionen sind PNG-Bytes
const maxResponse = 64 << 20

func userAgent() string {
	return fmt.Sprintf("aegan/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version())
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent())
	return req, nil
}

// do sendet reqData als JSON und dekodiert die Antwort in respData.
// Status >= 400 wird zu StatusError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqData, respData any) error {
	req, err := c.newRequest(ctx, method, path, query, reqData)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return err
	}
	if err := checkError(resp, body); err != nil {
		return err
	}

	if respData == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, respData)
}
