package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for error classification. Components wrap failures with
// exactly one marker; the orchestrator is the sole decider of what a marker
// means for the item or the batch.
var (
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrRejected          = errors.New("remote rejected")
	ErrTransient         = errors.New("transient failure")
	ErrTimeout           = errors.New("timeout")
	ErrExternalTool      = errors.New("external tool error")
	ErrInsufficientSpace = errors.New("insufficient disk space")
	ErrBufferExhausted   = errors.New("network buffer space exhausted")
	ErrCanceled          = errors.New("canceled")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// AbortsBatch reports whether an item failure must also stop the remainder of
// the current batch.
func AbortsBatch(err error) bool {
	return errors.Is(err, ErrInsufficientSpace)
}

// IsAbsence reports whether an error represents a remote 404, which the
// pipeline treats as absence rather than failure.
func IsAbsence(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCancellation reports whether an error stems from cooperative shutdown.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
