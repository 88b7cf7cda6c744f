package middleware

import (
	"bufio"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/log"
	"nport-service/request"
)

type writerWrapper struct {
	http.ResponseWriter

	statusCode int
}

// Hijack is required for websocket upgrades behind the wrapper.
func (w *writerWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	upstream, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("writerWrapper: upstream writer doesn't implement Hijack")
	}
	return upstream.Hijack()
}

// Flush is required so event streams keep flowing through the wrapper.
func (w *writerWrapper) Flush() {
	upstream, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		upstream.Flush()
	}
}

func (w *writerWrapper) StatusCode() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *writerWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func Logger(logger log.Logger, enableRequestLogging bool) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *request.Context) error {
			if !enableRequestLogging {
				return next.Handle(ctx)
			}

			r := ctx.Request()
			writer := &writerWrapper{ResponseWriter: ctx.ResponseWriter()}
			ctx.SetResponseWriter(writer)

			err := next.Handle(ctx)

			logger.Debug(ctx.Context(), "log request",
				log.String("httpMethod", r.Method),
				log.String("remoteAddr", r.RemoteAddr),
				log.String("clientIp", ctx.ClientIp()),
				log.Int("statusCode", writer.StatusCode()),
				log.String("endpoint", ctx.Endpoint()),
			)

			return err
		})
	}
}
