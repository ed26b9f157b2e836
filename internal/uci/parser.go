package uci

import (
	"sort"
	"strconv"
	"strings"
)

// Score is an engine evaluation. Mate values are moves-to-mate signed by
// side and are kept distinct from centipawns; collapsing them is a display
// concern of the consumer.
type Score struct {
	Mate  bool
	Value int
}

// PVLine is one principal variation with its own evaluation.
type PVLine struct {
	Index int
	Moves []string
	Score Score
}

type SearchStats struct {
	Depth    int
	SelDepth int
	Nodes    int64
	NPS      int64
}

// AnalysisResult is the structured form of one analysis's raw output.
type AnalysisResult struct {
	BestMove string
	Ponder   string
	Score    Score
	Lines    []PVLine
	Stats    SearchStats
}

// ParseAnalysis converts the captured raw lines of one search into a
// structured result. Pure and deterministic: identical input yields an
// identical result.
//
// Stats keep the running maximum across info lines. Score and pv are
// latest-wins per multipv index (defaulting to 1 when absent); lines are
// emitted sorted ascending by index. When the engine announced a best move
// but printed no pv lines, a single line is synthesized from the best move
// and the latest overall score.
func ParseAnalysis(raw []string) AnalysisResult {
	var res AnalysisResult
	scores := make(map[int]Score)
	pvs := make(map[int][]string)

	for _, line := range raw {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "info "):
			parseInfoLine(line, &res, scores, pvs)
		case strings.HasPrefix(line, "bestmove"):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				res.BestMove = fields[1]
			}
			if len(fields) >= 4 && fields[2] == "ponder" {
				res.Ponder = fields[3]
			}
		}
	}

	if len(pvs) > 0 {
		keys := make([]int, 0, len(pvs))
		for k := range pvs {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		res.Lines = make([]PVLine, 0, len(keys))
		for _, k := range keys {
			res.Lines = append(res.Lines, PVLine{Index: k, Moves: pvs[k], Score: scores[k]})
		}
		res.Score = res.Lines[0].Score
	} else if res.BestMove != "" {
		// Engines at very low depth may omit pv verbosity entirely.
		res.Lines = []PVLine{{Index: 1, Moves: []string{res.BestMove}, Score: res.Score}}
	}

	return res
}

func parseInfoLine(line string, res *AnalysisResult, scores map[int]Score, pvs map[int][]string) {
	fields := strings.Fields(line)

	var (
		index    = 1
		score    Score
		scoreSet bool
		pv       []string
	)

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if v, ok := intAt(fields, i+1); ok {
				if v > res.Stats.Depth {
					res.Stats.Depth = v
				}
				i++
			}
		case "seldepth":
			if v, ok := intAt(fields, i+1); ok {
				if v > res.Stats.SelDepth {
					res.Stats.SelDepth = v
				}
				i++
			}
		case "nodes":
			if v, ok := int64At(fields, i+1); ok {
				if v > res.Stats.Nodes {
					res.Stats.Nodes = v
				}
				i++
			}
		case "nps":
			if v, ok := int64At(fields, i+1); ok {
				if v > res.Stats.NPS {
					res.Stats.NPS = v
				}
				i++
			}
		case "multipv":
			if v, ok := intAt(fields, i+1); ok {
				index = v
				i++
			}
		case "score":
			if i+2 < len(fields) {
				if v, err := strconv.Atoi(fields[i+2]); err == nil {
					switch fields[i+1] {
					case "cp":
						score = Score{Value: v}
						scoreSet = true
					case "mate":
						score = Score{Mate: true, Value: v}
						scoreSet = true
					}
				}
				i += 2
			}
		case "pv":
			if i+1 < len(fields) {
				pv = append([]string(nil), fields[i+1:]...)
			}
			i = len(fields)
		}
	}

	if scoreSet {
		res.Score = score
		scores[index] = score
	}
	if len(pv) > 0 {
		pvs[index] = pv
	}
}

func intAt(fields []string, i int) (int, bool) {
	if i >= len(fields) {
		return 0, false
	}
	v, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, false
	}
	return v, true
}

func int64At(fields []string, i int) (int64, bool) {
	if i >= len(fields) {
		return 0, false
	}
	v, err := strconv.ParseInt(fields[i], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
