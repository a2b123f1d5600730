package models

// GenerateTourRequest asks the service to sample points on a manifold and
// solve them
type GenerateTourRequest struct {
	Manifold  string `json:"manifold" example:"sphere"`
	Count     int    `json:"count" example:"250"`
	Dimension int    `json:"dimension,omitempty" example:"3"`
}

// SolveTourRequest carries caller-supplied coordinates, flattened
type SolveTourRequest struct {
	Points    []float64 `json:"points"`
	Dimension int       `json:"dimension,omitempty" example:"2"`
}

// TourResponse is a solved, closed tour. Points and Flat describe the same
// sequence; the first point is repeated at the end.
type TourResponse struct {
	RunID      string      `json:"run_id"`
	Mode       string      `json:"mode"`
	Manifold   string      `json:"manifold,omitempty"`
	Dimension  int         `json:"dimension"`
	Points     [][]float64 `json:"points"`
	Flat       []float64   `json:"flat"`
	DurationMS int64       `json:"duration_ms"`
}

// ManifoldsResponse lists the accepted manifold names
type ManifoldsResponse struct {
	Manifolds []string `json:"manifolds"`
	MaxPoints int      `json:"max_points"`
}
