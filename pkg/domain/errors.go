package domain

import "errors"

// Failure kinds surfaced to callers. The HTTP layer maps these to status
// codes; none are retried inside the core.
var (
	// ErrSanitizationRejected means the query tripped the safety filter and
	// never reached retrieval.
	ErrSanitizationRejected = errors.New("query rejected by content filter")

	// ErrNoMatchFound means no corpus entry cleared the similarity threshold.
	ErrNoMatchFound = errors.New("no matching book found")

	// ErrNoSafeMatch means candidates existed but none survived profile
	// filtering or grounded generation.
	ErrNoSafeMatch = errors.New("no suitable book found for this profile")

	// ErrGroundingFailure signals that generated text was not anchored to the
	// selected record. It advances the candidate loop and is only surfaced
	// when every candidate is exhausted.
	ErrGroundingFailure = errors.New("generated text not grounded in summary")

	// ErrIndexUnavailable means the embedding index has not been built yet.
	ErrIndexUnavailable = errors.New("embedding index unavailable")

	// ErrUpstreamTimeout means an external embedding or generation call
	// exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream model call timed out")

	// ErrValidation covers malformed pagination, rating, or request input.
	ErrValidation = errors.New("invalid input")
)

// Kind returns the stable machine-readable kind for a taxonomy error, or
// "internal" when the error is outside the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSanitizationRejected):
		return "sanitization_rejected"
	case errors.Is(err, ErrNoMatchFound):
		return "no_match_found"
	case errors.Is(err, ErrNoSafeMatch):
		return "no_safe_match"
	case errors.Is(err, ErrGroundingFailure):
		return "generation_grounding_failure"
	case errors.Is(err, ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal"
	}
}
