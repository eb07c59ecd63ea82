package handlers

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/WilliamCarlos132/site4me/internal/track"
)

type navigateRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	VisitorID string `json:"visitorId,omitempty"`
	PagePath  string `json:"pagePath"`
	Referrer  string `json:"referrer,omitempty"`
}

type visibilityRequest struct {
	SessionID string `json:"sessionId"`
	Hidden    bool   `json:"hidden"`
}

type closeRequest struct {
	SessionID string `json:"sessionId"`
}

// NavigateHandler starts or advances a tracked session. The response
// carries the session ID the client must echo on later signals.
func NavigateHandler(m *track.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req navigateRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.PagePath == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "pagePath is required")
			return
		}
		id := m.Navigate(req.SessionID, req.VisitorID, req.PagePath, req.Referrer, readIP(ctx))
		jsonResponse(ctx, map[string]any{"success": true, "sessionId": id})
	}
}

// VisibilityHandler pauses or resumes a session's dwell clock.
func VisibilityHandler(m *track.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req visibilityRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := m.Visibility(req.SessionID, req.Hidden); err != nil {
			if errors.Is(err, track.ErrUnknownSession) {
				errResponse(ctx, fasthttp.StatusNotFound, "unknown session")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "visibility update failed")
			return
		}
		jsonResponse(ctx, map[string]any{"success": true})
	}
}

// CloseHandler ends a session, flushing its visit if long enough. Unknown
// sessions are fine: browsers fire unload more than once.
func CloseHandler(m *track.Manager) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req closeRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		m.Close(req.SessionID)
		jsonResponse(ctx, map[string]any{"success": true})
	}
}
