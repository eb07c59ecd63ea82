package handlers

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/WilliamCarlos132/site4me/internal/recorder"
	"github.com/WilliamCarlos132/site4me/internal/stats"
)

// PageviewHandler accepts a completed visit event and folds it into the
// aggregates. A store failure is invisible to the client: the event is
// buffered for replay and the response still reports success.
func PageviewHandler(rec *recorder.Recorder) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var ev stats.VisitEvent
		if err := json.Unmarshal(ctx.PostBody(), &ev); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if ev.ClientIP == "" {
			ev.ClientIP = readIP(ctx)
		}

		err := rec.Record(ctx, ev)
		switch {
		case err == nil, errors.Is(err, recorder.ErrTransient):
			jsonResponse(ctx, map[string]any{"success": true})
		case errors.Is(err, stats.ErrInvalidEvent):
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
		default:
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to record visit")
		}
	}
}
