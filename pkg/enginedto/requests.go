package enginedto

// AnalyzeRequest is the body of POST /analyze. Zero values mean "use the
// default": empty FEN is the standard start position, depth 0 becomes 14,
// multiPV 0 becomes 1.
type AnalyzeRequest struct {
	FEN        string   `json:"fen,omitempty"`
	Moves      []string `json:"moves,omitempty"`
	Depth      int      `json:"depth,omitempty"`
	MultiPV    int      `json:"multiPV,omitempty"`
	MoveTimeMs int      `json:"movetimeMs,omitempty"`
}
