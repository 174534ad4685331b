package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Getter fetches one URL. Callers wrap Client.Do to add accounting.
type Getter func(ctx context.Context, url string) (*Response, error)

// Transport adapts a Getter to http.RoundTripper so third-party crawlers
// share the client's cache, pacing, anti-bot handling and page accounting.
type Transport struct {
	Get Getter
}

// RoundTrip implements http.RoundTripper for GET and HEAD requests.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, fmt.Errorf("fetch transport: method %s not supported", req.Method)
	}
	if req.Body != nil {
		_ = req.Body.Close()
	}
	r, err := t.Get(req.Context(), req.URL.String())
	if err != nil {
		return nil, err
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	h := http.Header{}
	for k, v := range r.Header {
		h[k] = append([]string(nil), v...)
	}
	if r.ContentType != "" {
		h.Set("Content-Type", r.ContentType)
	}
	h.Del("Content-Encoding")
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))

	finalReq := req
	if r.FinalURL != "" && r.FinalURL != req.URL.String() {
		if fu, err := url.Parse(r.FinalURL); err == nil {
			finalReq = req.Clone(req.Context())
			finalReq.URL = fu
		}
	}
	body := r.Body
	if req.Method == http.MethodHead {
		body = nil
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       finalReq,
	}, nil
}
