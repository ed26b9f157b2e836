package analysis

import (
	"fmt"
	"regexp"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/engine-companion/pkg/enginedto"
)

const (
	defaultDepth   = 14
	defaultMultiPV = 1

	minDepth   = 1
	maxDepth   = 30
	minMultiPV = 1
	maxMultiPV = 10
)

// Engine coordinate notation: source square, target square, optional
// promotion piece. Legality is the engine's business, not ours.
var uciMovePattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][nbrq]?$`)

// ValidationError carries every problem found in a request body, rendered as
// "field: reason" fragments.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

// ValidateRequest checks an analyze body against the schema and applies
// defaults. Malformed FEN is rejected here rather than handed to the engine,
// whose behavior on bad input is undefined.
func ValidateRequest(req enginedto.AnalyzeRequest) (enginedto.AnalyzeRequest, error) {
	var problems []string

	if req.Depth == 0 {
		req.Depth = defaultDepth
	} else if req.Depth < minDepth || req.Depth > maxDepth {
		problems = append(problems, fmt.Sprintf("depth: must be between %d and %d", minDepth, maxDepth))
	}

	if req.MultiPV == 0 {
		req.MultiPV = defaultMultiPV
	} else if req.MultiPV < minMultiPV || req.MultiPV > maxMultiPV {
		problems = append(problems, fmt.Sprintf("multiPV: must be between %d and %d", minMultiPV, maxMultiPV))
	}

	if req.MoveTimeMs < 0 {
		problems = append(problems, "movetimeMs: must be >= 0")
	}

	req.FEN = strings.TrimSpace(req.FEN)
	if req.FEN != "" && req.FEN != "startpos" {
		if _, err := chesslib.FEN(req.FEN); err != nil {
			problems = append(problems, fmt.Sprintf("fen: %v", err))
		}
	}

	for i, mv := range req.Moves {
		if !uciMovePattern.MatchString(strings.TrimSpace(mv)) {
			problems = append(problems, fmt.Sprintf("moves[%d]: %q is not in engine move notation", i, mv))
		}
	}

	if len(problems) > 0 {
		return req, &ValidationError{Problems: problems}
	}
	return req, nil
}
