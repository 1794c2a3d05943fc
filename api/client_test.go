package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewClient(base, srv.Client())
}

func TestClientFromEnvironment(t *testing.T) {
	t.Setenv("AEGAN_HOST", "10.0.0.1:9000")
	c, err := ClientFromEnvironment()
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.1:9000", c.base.String())
}

func TestScalarsRequest(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/runs/abc/scalars", r.URL.Path)
		assert.Equal(t, "ms-ssim_G", r.URL.Query().Get("tag"))
		assert.True(t, strings.HasPrefix(r.UserAgent(), "aegan/"))

		json.NewEncoder(w).Encode(ScalarsResponse{Run: "abc", Tag: "ms-ssim_G", Points: []Point{{Step: 3, Value: 0.9}}})
	})

	resp, err := c.Scalars(context.Background(), "abc", "ms-ssim_G")
	require.NoError(t, err)
	require.Len(t, resp.Points, 1)
	require.Equal(t, 3, resp.Points[0].Step)
}

func TestStatusError(t *testing.T) {
	cases := map[string]struct {
		body    string
		code    string
		message string
	}{
		"json":  {`{"code":"IMAGE_TOO_SMALL","message":"image too small"}`, "IMAGE_TOO_SMALL", "image too small"},
		"plain": {"kaputt", "", "kaputt"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			})

			_, err := c.MSSSIM(context.Background(), &MSSSIMRequest{})
			var se StatusError
			require.True(t, errors.As(err, &se), "erwartet StatusError, bekommen %v", err)
			require.Equal(t, http.StatusBadRequest, se.StatusCode)
			require.Equal(t, tt.code, se.Code)
			require.Equal(t, tt.message, se.ErrorMessage)
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	require.Equal(t, "400 Bad Request: oops", StatusError{Status: "400 Bad Request", ErrorMessage: "oops"}.Error())
	require.Contains(t, StatusError{}.Error(), "server logs")
}
