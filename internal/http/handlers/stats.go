package handlers

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/valyala/fasthttp"

	"github.com/WilliamCarlos132/site4me/internal/stats"
	"github.com/WilliamCarlos132/site4me/internal/store"
)

// displayKeys are the aggregates the dashboard renders, in render order.
var displayKeys = []string{
	stats.KeySiteStats,
	stats.KeyTodayStats,
	stats.KeyRecentVisits,
	stats.KeyPageStats,
	stats.KeyTrendData,
	stats.KeyDurationStats,
}

// statsDoc resolves one aggregate to its JSON value, falling back to the
// key's default when nothing has been recorded yet.
func statsDoc(ctx *fasthttp.RequestCtx, s store.Store, key string) (json.RawMessage, error) {
	doc, err := s.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		def, _ := stats.Default(key, ctx.Time())
		return json.Marshal(def)
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// StatsHandler serves GET /v1/stats/{key} for a single aggregate.
func StatsHandler(s store.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		key, _ := ctx.UserValue("key").(string)
		if !slices.Contains(stats.AllKeys, key) {
			errResponse(ctx, fasthttp.StatusNotFound, "unknown stats key")
			return
		}
		data, err := statsDoc(ctx, s, key)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load stats")
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(data)
	}
}

// StatsBatchHandler serves GET /v1/stats: every display aggregate in one
// response, so the dashboard loads with a single round trip.
func StatsBatchHandler(s store.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		out := make(map[string]json.RawMessage, len(displayKeys))
		for _, key := range displayKeys {
			data, err := statsDoc(ctx, s, key)
			if err != nil {
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load stats")
				return
			}
			out[key] = data
		}
		jsonResponse(ctx, out)
	}
}
