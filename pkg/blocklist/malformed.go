package blocklist

import "strings"

// Default thresholds for the malformed-entry heuristic. Earlier releases of
// the enforcement tool could concatenate domains into a single token when a
// write raced a manual edit; these limits catch such corrupted entries. The
// thresholds are tunable policy, not a precise classifier.
const (
	DefaultMaxTokenLength = 50
	DefaultMaxTokenDots   = 6
)

// Heuristic decides whether a hosts file domain token looks corrupted.
// A malformed token is always a repair candidate and is never trusted as a
// currently-blocked signal.
type Heuristic struct {
	MaxTokenLength int
	MaxTokenDots   int
}

// DefaultHeuristic returns the heuristic with the default thresholds.
func DefaultHeuristic() Heuristic {
	return Heuristic{
		MaxTokenLength: DefaultMaxTokenLength,
		MaxTokenDots:   DefaultMaxTokenDots,
	}
}

// IsMalformed reports whether token fails the corruption heuristics: an
// over-long token, an abnormal count of dot-separated labels, or repeated
// www. prefixes from concatenated entries.
func (h Heuristic) IsMalformed(token string) bool {
	token = Normalize(token)
	if token == "" {
		return true
	}
	if h.MaxTokenLength > 0 && len(token) > h.MaxTokenLength {
		return true
	}
	if h.MaxTokenDots > 0 && strings.Count(token, ".") > h.MaxTokenDots {
		return true
	}
	if strings.Count(token, "www.") > 1 {
		return true
	}
	return false
}
