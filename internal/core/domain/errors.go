package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEntityNotFound   = errors.New("entity not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	// ErrUpstream marks embedding/rerank/store call failures. Call sites catch
	// it, log, and fall back to a degraded path instead of failing the query.
	ErrUpstream = errors.New("upstream service failure")
	// ErrSearchFailed is the only error the search orchestrator surfaces to
	// callers; everything below it degrades.
	ErrSearchFailed = errors.New("search failed")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
