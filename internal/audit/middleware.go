package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
)

// HTTPRecorder writes an audit entry for each request after the wrapped
// handler has responded. Recording failures never affect the response.
type HTTPRecorder struct {
	Service   *Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// HTTPConfig customises how the audit entry is produced for a route.
type HTTPConfig struct {
	Action        string
	TargetKind    string
	TargetIDParam string
	MetadataFunc  func(*http.Request, int) map[string]any
	ActorFunc     func(*http.Request) Actor
}

// Middleware returns a chi-compatible middleware that records audit entries.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, req)

			status := recorder.Status()
			entryErr := r.Service.Record(
				req.Context(),
				r.resolveActor(cfg, req),
				cfg.Action,
				cfg.TargetKind,
				targetID(cfg, req),
				req,
				status,
				encodeMetadata(cfg, req, status),
			)
			if entryErr != nil && r.OnError != nil {
				r.OnError(entryErr)
			}
		})
	}
}

// resolveActor prefers the per-route override, then the recorder-wide one,
// then the operator carried in the request context.
func (r HTTPRecorder) resolveActor(cfg HTTPConfig, req *http.Request) Actor {
	if cfg.ActorFunc != nil {
		return cfg.ActorFunc(req)
	}
	if r.ActorFunc != nil {
		return r.ActorFunc(req)
	}
	if req != nil {
		if operatorID, ok := common.ActorID(req.Context()); ok && operatorID != "" {
			return Actor{Kind: ActorKindOperator, ID: &operatorID}
		}
	}
	return Actor{Kind: ActorKindAnonymous}
}

func targetID(cfg HTTPConfig, req *http.Request) string {
	if cfg.TargetIDParam == "" {
		return ""
	}
	return chi.URLParam(req, cfg.TargetIDParam)
}

// encodeMetadata marshals the route's metadata payload. A payload that
// fails to marshal is dropped rather than blocking the audit entry.
func encodeMetadata(cfg HTTPConfig, req *http.Request, status int) []byte {
	if cfg.MetadataFunc == nil {
		return nil
	}
	payload := cfg.MetadataFunc(req, status)
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	return s.ResponseWriter.Write(b)
}
