package session

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"

	"github.com/jhoicas/pos-dashboard/internal/domain"
)

// Outcome resultado de tres vías de una operación de red del motor.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeRejected fallo esperado: credenciales o tokens inválidos.
	OutcomeRejected
	// OutcomeUnavailable fallo de transporte, timeout o sesión aún hidratándose.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// Classify traduce un error del motor a su Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrBackendUnavailable),
		errors.Is(err, domain.ErrSessionLoading),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return OutcomeUnavailable
	default:
		return OutcomeRejected
	}
}

// NormalizeUsername recorta espacios y aplica case folding antes de enviar al backend.
func NormalizeUsername(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}
