// Package server exposes the engine over HTTP. Runs stream their envelopes as
// server-sent events; session topics can be watched the same way.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/casualjim/strix"
	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/internal/broker"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runRequest struct {
	Question  string   `json:"question"`
	Files     []string `json:"files"`
	SessionID string   `json:"session_id"`
	Mode      string   `json:"mode"`
	TraceID   string   `json:"trace_id"`
}

func (r runRequest) toRequest() (strix.Request, error) {
	mode, err := runstate.ParseMode(r.Mode)
	if err != nil {
		return strix.Request{}, err
	}
	return strix.Request{
		Question:  r.Question,
		Files:     r.Files,
		SessionID: r.SessionID,
		Mode:      mode,
		TraceID:   r.TraceID,
	}, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type handlers struct {
	engine *strix.Engine
	broker broker.Broker
	logger *slog.Logger
}

// New returns the HTTP handler. A nil broker disables the session events
// route, a nil gatherer the metrics route.
func New(engine *strix.Engine, b broker.Broker, gatherer prometheus.Gatherer) *gin.Engine {
	h := &handlers{
		engine: engine,
		broker: b,
		logger: slog.Default().With(slogx.LoggerName("strix.server")),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.POST("/runs", h.createRun)
	if b != nil {
		v1.GET("/sessions/:id/events", h.watchSession)
	}
	return r
}

func wantsStream(c *gin.Context) bool {
	if c.Query("stream") == "true" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

func (h *handlers) createRun(c *gin.Context) {
	var body runRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	req, err := body.toRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if !wantsStream(c) {
		res, err := h.engine.Run(ctx, req, nil)
		if err != nil {
			h.logger.WarnContext(ctx, "run failed", slogx.Error(err))
			resp := errorResponse{Error: err.Error()}
			var serr *strix.StageError
			if errors.As(err, &serr) {
				resp.Stage = serr.Stage
			}
			c.JSON(http.StatusBadGateway, resp)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	ch, fut := h.engine.Stream(ctx, req)
	setSSEHeaders(c.Writer)
	c.Stream(func(w io.Writer) bool {
		env, ok := <-ch
		if !ok {
			return false
		}
		if err := writeEnvelope(w, env); err != nil {
			h.logger.WarnContext(ctx, "failed to write envelope", slogx.Error(err))
		}
		return true
	})
	// drain whatever is left when the client went away
	for range ch {
	}
	if _, err := fut.Get(ctx); err != nil && ctx.Err() == nil {
		h.logger.WarnContext(ctx, "streamed run failed", slogx.Error(err))
	}
}

func (h *handlers) watchSession(c *gin.Context) {
	ctx := c.Request.Context()
	hook, ch := events.ChannelHook(strix.DefaultStreamBuffer)
	sub, err := h.broker.Topic(ctx, c.Param("id")).Subscribe(ctx, hook)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	defer sub.Unsubscribe()

	setSSEHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case env := <-ch:
			if err := writeEnvelope(w, env); err != nil {
				return false
			}
			return true
		}
	})
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeEnvelope writes one SSE frame: the stage is the event name and the
// sequence number the event id.
func writeEnvelope(w io.Writer, env events.Envelope) error {
	data, err := env.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", env.Seq, env.Stage, data); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}
