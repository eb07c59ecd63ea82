package handlers

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(map[string]string{"error": msg})
	ctx.SetBody(body)
}

// readIP returns a best-effort client IP, preferring the proxy headers so
// the visitor sets key on the real client rather than the reverse proxy.
// Derived from gin-gonic/gin.
func readIP(ctx *fasthttp.RequestCtx) string {
	ip := string(ctx.Request.Header.Peek("X-Forwarded-For"))
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip == "" {
		ip = strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-Ip")))
	}
	if ip != "" {
		return ip
	}
	ip = ctx.RemoteIP().String()
	if ip == "<nil>" {
		return ""
	}
	return ip
}
