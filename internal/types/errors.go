package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode is a stable machine-readable identifier carried by CalcError.
// Transport layers map these to their own status vocabulary; the codes
// themselves never change.
type ErrorCode string

const (
	ErrEmptyRelicList            ErrorCode = "EMPTY_RELIC_LIST"
	ErrRelicLimitExceeded        ErrorCode = "RELIC_LIMIT_EXCEEDED"
	ErrDuplicateRelics           ErrorCode = "DUPLICATE_RELICS"
	ErrRelicNotFound             ErrorCode = "RELIC_NOT_FOUND"
	ErrInactiveRelics            ErrorCode = "INACTIVE_RELICS"
	ErrInvalidRelicStructure     ErrorCode = "INVALID_RELIC_STRUCTURE"
	ErrInvalidEffectStructure    ErrorCode = "INVALID_EFFECT_STRUCTURE"
	ErrConflictingRelics         ErrorCode = "CONFLICTING_RELICS"
	ErrCombatStyleIncompatible   ErrorCode = "COMBAT_STYLE_INCOMPATIBLE"
	ErrWeaponTypeIncompatible    ErrorCode = "WEAPON_TYPE_INCOMPATIBLE"
	ErrInvalidCalculationContext ErrorCode = "INVALID_CALCULATION_CONTEXT"
	ErrCalculationTimeout        ErrorCode = "CALCULATION_TIMEOUT"
	ErrOptimizationTimeout       ErrorCode = "OPTIMIZATION_TIMEOUT"
	ErrSelectionLimitExceeded    ErrorCode = "SELECTION_LIMIT_EXCEEDED"
	ErrInvalidBuildSize          ErrorCode = "INVALID_BUILD_SIZE"
	ErrInvalidCombatStyle        ErrorCode = "INVALID_COMBAT_STYLE"

	// ErrInternal covers repository and cache failures that bubble up;
	// it never partially populates a result.
	ErrInternal ErrorCode = "INTERNAL"
)

// CalcError is a domain error with a stable code and enough detail for the
// caller to fix the request.
type CalcError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// NewCalcError builds a CalcError. details may be nil.
func NewCalcError(code ErrorCode, message string, details map[string]any) *CalcError {
	return &CalcError{Code: code, Message: message, Details: details}
}

// Internal wraps an infrastructure failure under the INTERNAL code.
func Internal(op string, err error) *CalcError {
	return &CalcError{
		Code:    ErrInternal,
		Message: fmt.Sprintf("%s: %v", op, err),
	}
}

func (e *CalcError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	// Render details with sorted keys so identical inputs produce identical
	// error strings.
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (", e.Code, e.Message)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
	}
	b.WriteString(")")
	return b.String()
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var ce *CalcError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
