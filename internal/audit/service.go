package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/obs"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindOperator represents an authenticated counter operator.
	ActorKindOperator ActorKind = "operator"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
	// ActorKindAnonymous represents unauthenticated actors.
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind ActorKind
	ID   *string
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error)
	ListAuditLogs(ctx context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error)
	CountAuditLogs(ctx context.Context) (int64, error)
}

// Service persists audit logs for critical application flows.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists an audit log entry when auditing is enabled.
func (s Service) Record(ctx context.Context, actor Actor, action, targetKind, targetID string, req *http.Request, status int, metadata []byte) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 {
		if rand.Float64() > s.SamplingRate {
			return nil
		}
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	method := req.Method
	route := obs.RoutePatternFromContext(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	normalizedAction := buildAction(action, method, route)
	normalizedTarget := buildTarget(targetKind, route)

	actorKind := normalizeActorKind(actor.Kind)
	actorID := sanitizeString(actor.ID)

	jsonb := toJSONB(metadata, req)

	finalStatus := status
	if finalStatus == 0 {
		finalStatus = http.StatusOK
	}

	_, err := s.Store.InsertAuditLog(ctx, db.InsertAuditLogParams{
		ActorID:    toNullText(actorID),
		ActorKind:  string(actorKind),
		Action:     normalizedAction,
		TargetKind: toNullText(pointerOf(normalizedTarget)),
		TargetID:   toNullText(sanitizeString(pointerOf(targetID))),
		Method:     method,
		Path:       req.URL.Path,
		Status:     int32(finalStatus),
		Metadata:   jsonb,
	})
	return err
}

func buildAction(action, method, route string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed != "" {
		return trimmed
	}
	base := strings.ToUpper(strings.TrimSpace(method))
	target := route
	if target == "" {
		target = "/"
	}
	return base + " " + target
}

func buildTarget(targetKind, route string) string {
	trimmed := strings.TrimSpace(targetKind)
	if trimmed != "" {
		return trimmed
	}
	route = strings.Trim(route, " ")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		return strings.Join(segments[2:], ".")
	}
	return strings.ReplaceAll(strings.Trim(route, "/"), "/", ".")
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindOperator, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func sanitizeString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func pointerOf(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(value)
	return &trimmed
}

func toNullText(value *string) pgtype.Text {
	if value == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *value, Valid: true}
}

// toJSONB returns the caller supplied metadata untouched, otherwise it
// captures request context worth keeping (query string, client ip,
// request id) since the table has no dedicated columns for those.
func toJSONB(metadata []byte, req *http.Request) []byte {
	if len(metadata) > 0 {
		return metadata
	}
	payload := map[string]string{}
	if query := strings.TrimSpace(req.URL.RawQuery); query != "" {
		payload["query"] = query
	}
	if ip := strings.TrimSpace(common.ClientIP(req)); ip != "" {
		payload["ip"] = ip
	}
	if requestID := strings.TrimSpace(req.Header.Get("X-Request-ID")); requestID != "" {
		payload["requestId"] = requestID
	}
	if len(payload) == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
