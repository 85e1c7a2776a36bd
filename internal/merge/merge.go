package merge

import (
	"fmt"
	"strings"
)

// Outcome classifies what a merge did with the hypothesis.
type Outcome int

const (
	// OutcomeInitial means committed text was empty and the hypothesis was
	// committed wholesale.
	OutcomeInitial Outcome = iota
	// OutcomeAppended means an overlap anchor was found and the hypothesis
	// tail after the anchor was appended.
	OutcomeAppended
	// OutcomeRepeat means the hypothesis carried nothing beyond text already
	// committed; the transcript is unchanged.
	OutcomeRepeat
	// OutcomeDiscarded means no trustworthy anchor was found; the hypothesis
	// was dropped to protect the transcript.
	OutcomeDiscarded
	// OutcomeEmpty means the hypothesis had no usable tokens.
	OutcomeEmpty
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeInitial:
		return "initial"
	case OutcomeAppended:
		return "appended"
	case OutcomeRepeat:
		return "repeat"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeEmpty:
		return "empty"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// repeatThreshold is the token-level similarity above which an unanchored
// hypothesis is treated as a noisy repeat of the committed tail instead of
// new speech.
const repeatThreshold = 0.88

// Config holds the anchor search parameters.
type Config struct {
	// OverlapWindow is how many trailing committed tokens are considered
	// when searching for the anchor.
	OverlapWindow int
	// MinOverlap is the shortest anchor accepted as a real overlap; shorter
	// matches are treated as coincidence.
	MinOverlap int
}

// Result describes one merge step.
type Result struct {
	// Text is the updated committed transcript.
	Text string
	// Appended is the text added this step, empty when nothing was added.
	Appended string
	// Anchor is the matched anchor length in tokens.
	Anchor int
	// Outcome classifies the step.
	Outcome Outcome
}

// Engine merges hypotheses into a growing transcript. It is stateless and
// safe for concurrent use; the caller owns the committed text.
type Engine struct {
	cfg Config
}

// NewEngine returns a merge engine with the given anchor parameters.
func NewEngine(cfg Config) *Engine {
	if cfg.OverlapWindow < 1 {
		cfg.OverlapWindow = 40
	}
	if cfg.MinOverlap < 1 {
		cfg.MinOverlap = 2
	}
	return &Engine{cfg: cfg}
}

// Merge reconciles hypothesis against committed and returns the resulting
// transcript. Committed text is never truncated or rewritten; the only
// possible changes are appending new tokens or leaving it untouched.
func (e *Engine) Merge(committed, hypothesis string) Result {
	hypRaw, hypNorm := tokenize(hypothesis)
	if !hasContent(hypNorm) {
		return Result{Text: committed, Outcome: OutcomeEmpty}
	}

	comRaw, comNorm := tokenize(committed)
	if !hasContent(comNorm) {
		return Result{
			Text:     strings.Join(hypRaw, " "),
			Appended: strings.Join(hypRaw, " "),
			Outcome:  OutcomeInitial,
		}
	}

	// Only the trailing window of committed text can overlap a hypothesis
	// produced from a bounded look-back decode.
	tailStart := len(comRaw) - e.cfg.OverlapWindow
	if tailStart < 0 {
		tailStart = 0
	}
	tailNorm := comNorm[tailStart:]

	if anchor := longestAnchor(tailNorm, hypNorm, e.cfg.MinOverlap); anchor > 0 {
		if anchor == len(hypRaw) {
			// The hypothesis ends inside text we already have.
			return Result{Text: committed, Anchor: anchor, Outcome: OutcomeRepeat}
		}
		appended := strings.Join(hypRaw[anchor:], " ")
		return Result{
			Text:     committed + " " + appended,
			Appended: appended,
			Anchor:   anchor,
			Outcome:  OutcomeAppended,
		}
	}

	// A tail shorter than MinOverlap can never anchor, but a hypothesis that
	// restates the entire committed text and continues past it is still a
	// safe extension.
	if len(comNorm) < len(hypNorm) && equalTokens(comNorm, hypNorm[:len(comNorm)]) {
		appended := strings.Join(hypRaw[len(comNorm):], " ")
		return Result{
			Text:     committed + " " + appended,
			Appended: appended,
			Anchor:   len(comNorm),
			Outcome:  OutcomeAppended,
		}
	}

	// Anti-repeat net: a hypothesis that is contained in, or nearly identical
	// to, the committed tail brings nothing new.
	if isContainedIn(hypNorm, tailNorm) {
		return Result{Text: committed, Outcome: OutcomeRepeat}
	}
	if tokenSimilarity(hypNorm, tailNorm) >= repeatThreshold {
		return Result{Text: committed, Outcome: OutcomeRepeat}
	}

	// No anchor and not a repeat: the decoder produced text we cannot place.
	// Dropping it loses at most one cycle of speech; appending it blindly
	// would duplicate or scramble the transcript.
	return Result{Text: committed, Outcome: OutcomeDiscarded}
}

// longestAnchor finds the longest k such that the last k tokens of tail
// equal the first k tokens of hyp, with k >= minOverlap. Returns 0 when no
// acceptable anchor exists.
func longestAnchor(tail, hyp []string, minOverlap int) int {
	max := len(tail)
	if len(hyp) < max {
		max = len(hyp)
	}
	for k := max; k >= minOverlap; k-- {
		if equalTokens(tail[len(tail)-k:], hyp[:k]) {
			return k
		}
	}
	return 0
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isContainedIn reports whether needle appears as a contiguous token
// subsequence of haystack.
func isContainedIn(needle, haystack []string) bool {
	if len(needle) > len(haystack) {
		return false
	}
	for start := 0; start+len(needle) <= len(haystack); start++ {
		if equalTokens(haystack[start:start+len(needle)], needle) {
			return true
		}
	}
	return false
}

// tokenSimilarity returns 2*LCS/(len(a)+len(b)), the token-level analogue of
// a sequence-matcher ratio. 1.0 means identical sequences.
func tokenSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}
