package models

// StreamTourRequest is the single message a client sends after opening the
// tour stream. Exactly one of Manifold or Points must be set.
type StreamTourRequest struct {
	Manifold  string    `json:"manifold,omitempty"`
	Count     int       `json:"count,omitempty"`
	Points    []float64 `json:"points,omitempty"`
	Dimension int       `json:"dimension,omitempty"`
}

// StreamEvent is one message sent to a tour stream client
type StreamEvent struct {
	Type  string         `json:"type"`
	Line  string         `json:"line,omitempty"`
	Tour  *TourResponse  `json:"tour,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// Stream event types
const (
	EventTypeEngineOutput = "engine_output"
	EventTypeTour         = "tour"
	EventTypeError        = "error"
)
