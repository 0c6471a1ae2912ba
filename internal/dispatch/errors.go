package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// ErroEnvio classifies a provider send failure. Transient failures are
// retried by the scheduler up to the attempt bound; permanent failures move
// the charge straight to its terminal error state.
type ErroEnvio struct {
	Permanente bool
	Codigo     string // provider error code, when reported
	Err        error
}

func (e *ErroEnvio) Error() string {
	kind := "transitorio"
	if e.Permanente {
		kind = "permanente"
	}
	if e.Codigo != "" {
		return fmt.Sprintf("envio %s (%s): %v", kind, e.Codigo, e.Err)
	}
	return fmt.Sprintf("envio %s: %v", kind, e.Err)
}

func (e *ErroEnvio) Unwrap() error { return e.Err }

// Permanente wraps err as a non-retryable send failure.
func Permanente(codigo string, err error) error {
	return &ErroEnvio{Permanente: true, Codigo: codigo, Err: err}
}

// Transitorio wraps err as a retryable send failure.
func Transitorio(err error) error {
	return &ErroEnvio{Err: err}
}

// EhPermanente reports whether err is a permanent send failure. Timeouts,
// cancellations and unclassified errors count as transient: retrying an
// unknown failure is safe, retrying a rejected recipient is not.
func EhPermanente(err error) bool {
	var ee *ErroEnvio
	if errors.As(err, &ee) {
		return ee.Permanente
	}
	return false
}

// CodigoProvedor extracts the provider error code from err, if any.
func CodigoProvedor(err error) string {
	var ee *ErroEnvio
	if errors.As(err, &ee) {
		return ee.Codigo
	}
	return ""
}

// EhTimeout reports whether err came from the per-attempt deadline.
func EhTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
