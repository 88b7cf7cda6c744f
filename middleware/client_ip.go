package middleware

import (
	"net"
	"strings"

	"nport-service/request"
)

// ClientIp resolves the identity used for rate limiting. Proxy headers take
// precedence over the socket peer so limits survive a reverse proxy.
func ClientIp() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			ctx.SetClientIp(resolveClientIp(ctx))
			return next.Handle(ctx)
		})
	}
}

func resolveClientIp(ctx *request.Context) string {
	req := ctx.Request()

	forwarded := req.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		first = strings.TrimSpace(first)
		if first != "" {
			return first
		}
	}

	realIp := strings.TrimSpace(req.Header.Get("X-Real-IP"))
	if realIp != "" {
		return realIp
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
