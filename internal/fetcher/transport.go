package fetcher

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

type roundTripper struct {
	f    *Fetcher
	kind Kind
}

// Transport 将 Fetcher 包装成 http.RoundTripper，供 colly 等库复用同一套重试/UA/超时策略
func (f *Fetcher) Transport(kind Kind) http.RoundTripper {
	return &roundTripper{f: f, kind: kind}
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, fmt.Errorf("fetcher transport: method %s not supported", req.Method)
	}
	if req.Body != nil {
		_ = req.Body.Close()
	}

	res, err := rt.f.Fetch(req.Context(), req.URL.String(), rt.kind)
	if err != nil {
		return nil, err
	}

	final := req.Clone(req.Context())
	if u, perr := url.Parse(res.FinalURL); perr == nil {
		final.URL = u
		final.Host = u.Host
	}

	header := make(http.Header)
	ct := res.ContentType
	if ct == "" {
		ct = http.DetectContentType(res.Body)
	}
	header.Set("Content-Type", ct)
	header.Set("Content-Length", strconv.Itoa(len(res.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", res.Status, http.StatusText(res.Status)),
		StatusCode:    res.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(res.Body)),
		ContentLength: int64(len(res.Body)),
		Request:       final,
	}, nil
}
