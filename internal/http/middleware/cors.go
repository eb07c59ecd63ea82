// Package middleware holds the fasthttp middleware shared across routes.
package middleware

import (
	"github.com/valyala/fasthttp"

	"github.com/WilliamCarlos132/site4me/internal/config"
)

// CORS allows the tracked website, served from a different origin, to call
// the tracking and stats endpoints. Preflight requests are answered here
// without reaching the router.
func CORS(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", cfg.AllowedOrigin)
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type")

			if string(ctx.Method()) == fasthttp.MethodOptions {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}
			next(ctx)
		}
	}
}
