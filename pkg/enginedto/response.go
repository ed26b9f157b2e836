package enginedto

const (
	EvalCentipawn = "cp"
	EvalMate      = "mate"
)

// Evaluation is an engine score. Mate values are moves-to-mate signed by
// side; they are never collapsed into centipawns here.
type Evaluation struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

type Line struct {
	PV   []string   `json:"pv"`
	Eval Evaluation `json:"eval"`
}

type Statistics struct {
	Depth    int   `json:"depth"`
	SelDepth int   `json:"selDepth,omitempty"`
	Nodes    int64 `json:"nodes"`
	NPS      int64 `json:"nps"`
}

type AnalyzeResponse struct {
	BestMove   string     `json:"bestMove"`
	Ponder     string     `json:"ponder,omitempty"`
	Evaluation Evaluation `json:"evaluation"`
	Lines      []Line     `json:"lines"`
	Statistics Statistics `json:"statistics"`
	TimingMs   int64      `json:"timingMs"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Engine  string `json:"engine"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}
