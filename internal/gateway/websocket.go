package gateway

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/tour-orchestrator/internal/models"
	"github.com/bizmatters/tour-orchestrator/internal/orchestration"
)

const (
	requestReadTimeout = 10 * time.Second
	writeTimeout       = 10 * time.Second
	eventBufferSize    = 256
)

var wsTracer = otel.Tracer("tour-stream")

// TourStream runs solves over a WebSocket, forwarding engine output as it is
// produced
type TourStream struct {
	orchestrationService *orchestration.Service
	upgrader             websocket.Upgrader
	tracer               trace.Tracer
}

// NewTourStream creates a new tour stream handler
func NewTourStream(orchestrationService *orchestration.Service) *TourStream {
	return &TourStream{
		orchestrationService: orchestrationService,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		tracer: wsTracer,
	}
}

// StreamTour handles WebSocket /api/ws/tours
// @Summary Stream a solve
// @Description The client sends one models.StreamTourRequest message. The server answers with engine_output events, then a single tour or error event, then closes.
// @Tags tours
// @Success 101 "Switching Protocols"
// @Router /ws/tours [get]
func (s *TourStream) StreamTour(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "tour_stream.stream_tour")
	defer span.End()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf(`{"level":"warn","message":"Failed to upgrade connection","error":%q}`, err.Error())
		return
	}
	defer conn.Close()

	var req models.StreamTourRequest
	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		span.RecordError(err)
		s.finish(conn, models.StreamEvent{
			Type:  models.EventTypeError,
			Error: &models.ErrorResponse{Error: "Invalid request message", Code: models.ErrCodeInvalidRequest},
		})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if len(req.Points) > 0 && req.Dimension == 0 {
		req.Dimension = defaultPointsDimension
	}
	span.SetAttributes(
		attribute.String("manifold", req.Manifold),
		attribute.Int("count", req.Count),
		attribute.Int("values", len(req.Points)),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A client that goes away cancels the solve
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	events := make(chan models.StreamEvent, eventBufferSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeEvents(conn, events, cancel)
	}()

	sink := func(line string) {
		select {
		case events <- models.StreamEvent{Type: models.EventTypeEngineOutput, Line: line}:
		default:
			log.Printf(`{"level":"debug","message":"Dropped engine output, client too slow"}`)
		}
	}

	result, err := s.orchestrationService.Solve(ctx, orchestration.Request{
		Manifold:  req.Manifold,
		Count:     req.Count,
		Points:    req.Points,
		Dimension: req.Dimension,
	}, sink)

	final := models.StreamEvent{Type: models.EventTypeTour}
	if err != nil {
		span.RecordError(err)
		_, body := errorResponse(err)
		final = models.StreamEvent{Type: models.EventTypeError, Error: &body}
	} else {
		tour := tourResponse(result)
		final.Tour = &tour
	}

	// Engine output was queued before the solve returned, so it precedes the
	// final event on the channel.
	events <- final
	close(events)
	wg.Wait()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

// writeEvents drains events until it is closed. After a write failure the
// remaining events are discarded.
func (s *TourStream) writeEvents(conn *websocket.Conn, events <-chan models.StreamEvent, cancel context.CancelFunc) {
	failed := false
	for event := range events {
		if failed {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(event); err != nil {
			log.Printf(`{"level":"warn","message":"Failed to write stream event","error":%q}`, err.Error())
			failed = true
			cancel()
		}
	}
}

func (s *TourStream) finish(conn *websocket.Conn, event models.StreamEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(event); err != nil {
		log.Printf(`{"level":"warn","message":"Failed to write stream event","error":%q}`, err.Error())
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}
