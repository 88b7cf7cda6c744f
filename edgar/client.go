package edgar

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"nport-service/conf"
)

type httpResult struct {
	status int
	body   []byte
}

// client is the shared outbound HTTP layer. SEC rejects requests without a
// descriptive User-Agent, so every call carries the configured one.
type client struct {
	cli       *http.Client
	userAgent string
}

func newClient(config conf.Edgar) client {
	return client{
		cli:       &http.Client{},
		userAgent: config.GetUserAgent(),
	}
}

func (c client) get(ctx context.Context, url string, timeout time.Duration) (*httpResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "build request")
	}
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept-Language", "en-US,en;q=0.9")

	response, err := c.cli.Do(request)
	if err != nil {
		return nil, errors.WithMessagef(err, "get %s", url)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, errors.WithMessagef(err, "read body of %s", url)
	}

	return &httpResult{status: response.StatusCode, body: body}, nil
}
