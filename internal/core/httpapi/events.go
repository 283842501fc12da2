package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/arocore/core/common/spec/envelope"
	"github.com/arocore/core/internal/core/store"
)

type eventsResponse struct {
	Events     []envelope.Event `json:"events"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// handleListEvents serves GET /v1/events?tenantId=...&after=...&limit=...
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) error {
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		return badRequest("tenantId query parameter is required")
	}

	after := int64(0)
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest("after must be an integer cursor")
		}
		after = parsed
	}

	limit := s.cfg.DefaultEventsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return badRequest("limit must be an integer")
		}
		limit = parsed
	}
	if limit <= 0 {
		limit = s.cfg.DefaultEventsLimit
	}
	if limit > s.cfg.MaxEventsLimit {
		limit = s.cfg.MaxEventsLimit
	}

	events, err := s.deps.Store.ListEventsAfter(r.Context(), tenantID, after, limit)
	if err != nil {
		return internalError(err)
	}

	resp := eventsResponse{Events: events}
	if len(events) > 0 {
		resp.NextCursor = events[len(events)-1].ReplayCursor
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

type createSubscriptionRequest struct {
	TenantID    string `json:"tenantId"`
	CallbackURL string `json:"callbackUrl"`
}

type subscriptionResponse struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	Cursor      int64  `json:"cursor"`
}

func toSubscriptionResponse(sub *store.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:          sub.ID,
		TenantID:    sub.TenantID,
		CallbackURL: sub.CallbackURL.String,
		Cursor:      sub.Cursor,
	}
}

// handleCreateSubscription serves POST /v1/subscriptions.
func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) error {
	var req createSubscriptionRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	if req.TenantID == "" {
		return badRequest("tenantId is required")
	}

	sub := &store.Subscription{ID: uuid.NewString(), TenantID: req.TenantID}
	if req.CallbackURL != "" {
		sub.CallbackURL.String = req.CallbackURL
		sub.CallbackURL.Valid = true
	}
	if err := s.deps.Store.CreateSubscription(r.Context(), sub); err != nil {
		return internalError(err)
	}

	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
	return nil
}

type replayRequest struct {
	FromCursor int64 `json:"fromCursor"`
}

// handleReplaySubscription serves POST /v1/subscriptions/{id}/replay: it
// replays events after either the request's fromCursor or, if unset, the
// subscription's own saved cursor, then advances the saved cursor to match.
func (s *Server) handleReplaySubscription(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if id == "" {
		return badRequest("subscription id is required")
	}

	var req replayRequest
	if r.ContentLength != 0 {
		if apiErr := decodeJSON(r, &req); apiErr != nil {
			return apiErr
		}
	}

	ctx := r.Context()
	sub, err := s.deps.Store.GetSubscription(ctx, id)
	if err != nil {
		return notFound(envelope.CodeRouteNotFound, "subscription not found")
	}

	fromCursor := req.FromCursor
	if fromCursor == 0 {
		fromCursor = sub.Cursor
	}

	events, err := s.deps.Store.ListEventsAfter(ctx, sub.TenantID, fromCursor, s.cfg.MaxEventsLimit)
	if err != nil {
		return internalError(err)
	}

	if len(events) > 0 {
		lastCursor, parseErr := strconv.ParseInt(events[len(events)-1].ReplayCursor, 10, 64)
		if parseErr == nil {
			if err := s.deps.Store.AdvanceSubscriptionCursor(ctx, id, lastCursor); err != nil {
				return internalError(err)
			}
		}
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
	return nil
}
