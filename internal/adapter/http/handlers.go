package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/meteo-telemetry-service/internal/display"
	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/telemetry"
	"github.com/couchcryptid/meteo-telemetry-service/internal/units"
)

const kindBadRequest = "bad_request"

type ingestResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	params, err := ingestParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	res, err := s.svc.Ingest(r.Context(), telemetry.Request{
		Source:     telemetry.SourceHTTP,
		Params:     params,
		ClientAddr: s.clientAddr(r),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Status: "stored", ID: res.ID})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap, err := s.svc.Latest(r.Context(), splitList(q.Get("fields")), unitTargets(q))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	opts, err := displayOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	out, err := s.svc.Render(r.Context(), opts)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Body); err != nil {
		s.logger.Warn("write display response failed", "error", err)
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", kind, "error", err)
	}
	if kind == "" {
		kind = domain.KindStoreFailure
	}

	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	writeError(w, status, string(kind), msg)
}

func statusForKind(k domain.Kind) int {
	switch k {
	case domain.KindInvalidAddress, domain.KindOriginDenied:
		return http.StatusForbidden
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func unitTargets(q map[string][]string) units.Set {
	get := func(key string) units.Unit {
		vals := q[key]
		if len(vals) == 0 {
			return ""
		}
		u, _ := units.Parse(vals[0])
		return u
	}
	return units.Set{
		Temperature: get("t_unit"),
		Pressure:    get("p_unit"),
		Wind:        get("w_unit"),
		Rain:        get("r_unit"),
	}
}

func displayOptions(r *http.Request) (display.Options, error) {
	q := r.URL.Query()
	opts := display.Options{
		Fields:      splitList(q.Get("fields")),
		Targets:     unitTargets(q),
		Style:       display.StyleInline,
		Decimals:    display.NoRounding,
		Direction:   display.Degrees,
		Placeholder: q.Get("placeholder"),
	}

	if v := q.Get("style"); v != "" {
		st, ok := display.ParseStyle(v)
		if !ok {
			return opts, errors.New("unknown style " + strconv.Quote(v))
		}
		opts.Style = st
	}
	if v := q.Get("decimals"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 6 {
			return opts, errors.New("decimals must be an integer between 0 and 6")
		}
		opts.Decimals = n
	}
	switch dir := strings.ToLower(q.Get("dir")); dir {
	case "", string(display.Degrees):
	case string(display.Compass):
		opts.Direction = display.Compass
	default:
		return opts, errors.New("dir must be degrees or compass")
	}
	return opts, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
