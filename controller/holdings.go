package controller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/json"
	"github.com/txix-open/isp-kit/log"
	"nport-service/domain"
	"nport-service/httperrors"
	"nport-service/request"
	"nport-service/service"
)

const taskIdHeader = "X-Task-Id"

// nolint:gochecknoglobals
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Holdings struct {
	service service.Holdings
	logger  log.Logger
}

func NewHoldings(service service.Holdings, logger log.Logger) Holdings {
	return Holdings{
		service: service,
		logger:  logger,
	}
}

// Get is the synchronous path: the whole fund result in one response.
func (c Holdings) Get(ctx *request.Context) error {
	req, err := c.streamRequest(ctx)
	if err != nil {
		return err
	}

	result, err := c.service.Get(ctx.Context(), req)
	if err != nil {
		return describeError(err)
	}
	return writeJson(ctx.ResponseWriter(), http.StatusOK, result)
}

// Stream serves the retrieval as server-sent events. The task id is exposed
// in a response header so the client can cancel mid-flight.
func (c Holdings) Stream(ctx *request.Context) error {
	req, err := c.streamRequest(ctx)
	if err != nil {
		return err
	}

	writer := ctx.ResponseWriter()
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return httperrors.New(http.StatusInternalServerError, "streaming is not supported", errors.New("response writer is not a flusher"))
	}

	task, events := c.service.Stream(ctx.Context(), req)

	header := writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set(taskIdHeader, task.Id())
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return errors.WithMessage(err, "marshal event")
		}
		_, err = fmt.Fprintf(writer, "data: %s\n\n", payload)
		if err != nil {
			// the subscriber is gone, the task keeps its partial state
			task.Cancel()
			return nil
		}
		flusher.Flush()
	}
	return nil
}

// StreamWs serves the same event sequence over a websocket. The client may
// send {"action": "cancel"} at any point.
func (c Holdings) StreamWs(ctx *request.Context) error {
	req, err := c.streamRequest(ctx)
	if err != nil {
		return err
	}

	task, events := c.service.Stream(ctx.Context(), req)

	conn, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), http.Header{taskIdHeader: []string{task.Id()}})
	if err != nil {
		task.Cancel()
		// the upgrader has already written the error response
		return nil
	}
	defer conn.Close()

	go c.readCommands(ctx.Context(), conn, task)

	for event := range events {
		err := conn.WriteJSON(event)
		if err != nil {
			task.Cancel()
			return nil
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func (c Holdings) readCommands(ctx context.Context, conn *websocket.Conn, task *service.Task) {
	for {
		command := struct {
			Action string `json:"action"`
		}{}
		err := conn.ReadJSON(&command)
		if err != nil {
			return
		}
		if command.Action == "cancel" {
			task.Cancel()
			c.logger.Info(ctx, "stream cancelled by client", log.String("taskId", task.Id()))
		}
	}
}

func (c Holdings) Cancel(ctx *request.Context) error {
	taskId := mux.Vars(ctx.Request())["taskId"]
	err := c.service.Cancel(taskId)
	if err != nil {
		return describeError(err)
	}
	return writeJson(ctx.ResponseWriter(), http.StatusOK, map[string]string{
		"status": "cancelled",
		"taskId": taskId,
	})
}

// TaskResult returns whatever a task accumulated, marked partial. Useful
// after a cancellation, when the stream has already gone silent.
func (c Holdings) TaskResult(ctx *request.Context) error {
	taskId := mux.Vars(ctx.Request())["taskId"]
	result, err := c.service.TaskResult(taskId)
	if err != nil {
		return describeError(err)
	}
	return writeJson(ctx.ResponseWriter(), http.StatusOK, result)
}

func (c Holdings) streamRequest(ctx *request.Context) (service.StreamRequest, error) {
	cik, err := domain.NormalizeCik(mux.Vars(ctx.Request())["cik"])
	if err != nil {
		return service.StreamRequest{}, httperrors.New(http.StatusBadRequest, err.Error(), err)
	}

	limit := 0
	if rawLimit := ctx.Param("limit"); rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			return service.StreamRequest{}, httperrors.New(http.StatusBadRequest, "limit must be a non-negative integer", errors.Errorf("invalid limit %q", rawLimit))
		}
	}

	return service.StreamRequest{
		Cik:      cik,
		Identity: ctx.ClientIp(),
		TaskId:   ctx.Param(taskIdHeader),
		Limit:    limit,
	}, nil
}

func describeError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCik):
		return httperrors.New(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, domain.ErrTaskNotFound):
		return httperrors.New(http.StatusNotFound, "task not found", err)
	case errors.Is(err, domain.ErrNoHoldings):
		return httperrors.New(http.StatusUnprocessableEntity, "no holdings found in any latest-date filings", err)
	case errors.Is(err, context.DeadlineExceeded):
		return httperrors.New(http.StatusGatewayTimeout, "sec api timed out", err)
	}

	limited := domain.RateLimitedError{}
	if errors.As(err, &limited) {
		return httperrors.
			New(http.StatusTooManyRequests, limited.Error(), err).
			WithRetryAfter(limited.RetryAfterSeconds())
	}
	notFound := domain.NotFoundError{}
	if errors.As(err, &notFound) {
		return httperrors.New(http.StatusNotFound, notFound.Message, err)
	}
	unavailable := domain.DocumentUnavailableError{}
	if errors.As(err, &unavailable) {
		return httperrors.New(http.StatusBadGateway, unavailable.Error(), err)
	}
	upstream := domain.UpstreamError{}
	if errors.As(err, &upstream) {
		return httperrors.New(http.StatusServiceUnavailable, "sec api unavailable", err)
	}
	return err
}

func writeJson(w http.ResponseWriter, statusCode int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(body)
}
