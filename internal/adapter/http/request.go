package http

import (
	"fmt"
	"io"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
)

const maxIngestBody = 64 << 10

// ingestParams merges pushed fields from a JSON body, a form body, and the
// query string. Later sources win, so the query string takes precedence.
func ingestParams(r *http.Request) (map[string]string, error) {
	params := make(map[string]string)

	if r.Body != nil && r.Method == http.MethodPost {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(body) > maxIngestBody {
			return nil, fmt.Errorf("body exceeds %d bytes", maxIngestBody)
		}

		switch {
		case mediaType == "application/json":
			if err := mergeJSON(params, body); err != nil {
				return nil, err
			}
		case mediaType == "application/x-www-form-urlencoded":
			form, err := url.ParseQuery(string(body))
			if err != nil {
				return nil, fmt.Errorf("parse form body: %w", err)
			}
			mergeFirst(params, form)
		}
	}

	mergeFirst(params, r.URL.Query())
	return params, nil
}

func mergeJSON(dst map[string]string, body []byte) error {
	obj, err := domain.DecodeParams(body)
	if err != nil {
		return err
	}
	maps.Copy(dst, obj)
	return nil
}

func mergeFirst(dst map[string]string, src map[string][]string) {
	for k, vals := range src {
		if len(vals) > 0 {
			dst[k] = vals[0]
		}
	}
}

// clientAddr returns the address the push came from, honoring the configured
// proxy header when present.
func (s *Server) clientAddr(r *http.Request) string {
	if s.clientIPHeader != "" {
		if v := r.Header.Get(s.clientIPHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			return strings.TrimSpace(first)
		}
	}
	return r.RemoteAddr
}
