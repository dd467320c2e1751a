package quarry

import "fmt"

// ErrUnsupportedCategory reports a content category with no registered
// chunking strategy. Callers typically fall back to the document strategy.
type ErrUnsupportedCategory struct {
	Category Category
}

func (e *ErrUnsupportedCategory) Error() string {
	return fmt.Sprintf("unsupported category: %q", e.Category)
}

// ErrChunking reports structurally invalid chunker input, such as an empty
// document. Chunkers otherwise always produce at least one fragment.
type ErrChunking struct {
	Category Category
	Reason   string
}

func (e *ErrChunking) Error() string {
	return fmt.Sprintf("chunking %s: %s", e.Category, e.Reason)
}

// ErrRetrieval reports a failed search against a candidate source. It is
// returned only when the primary (vector) source fails while it carries
// ranking weight; keyword source failures degrade silently.
type ErrRetrieval struct {
	Source string
	Err    error
}

func (e *ErrRetrieval) Error() string {
	return fmt.Sprintf("%s search: %v", e.Source, e.Err)
}

func (e *ErrRetrieval) Unwrap() error { return e.Err }

// ErrEmbedding reports a failure from an embedding provider, carrying the
// provider name for logs and a human-readable message.
type ErrEmbedding struct {
	Provider string
	Message  string
}

func (e *ErrEmbedding) Error() string {
	return fmt.Sprintf("embedding provider %s: %s", e.Provider, e.Message)
}

// ErrInvalidParameter reports a caller-supplied value outside its documented
// range, such as alpha outside [0,1] or a non-positive topK.
type ErrInvalidParameter struct {
	Param  string
	Reason string
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}
