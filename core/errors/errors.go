// Package errors provides standardized error types for the apparatus pipeline.
//
// Every failure in the core is one of four kinds: a document missing required
// substructure, a resegmentation whose readings disagree on segment counts, a
// witness reference that matches no reading, or a configuration that would
// destroy required structure before any transformation runs. All of them
// carry a human-readable diagnostic and propagate to the caller; nothing in
// the core retries or swallows an error.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	// ErrStructure indicates a document lacks an expected substructure.
	ErrStructure = errors.New("structural violation")
	// ErrResegmentation indicates segment counts differ between readings.
	ErrResegmentation = errors.New("resegmentation mismatch")
	// ErrWitness indicates a witness reference matched no reading.
	ErrWitness = errors.New("unknown witness membership")
	// ErrConfig indicates a configuration that would eliminate required structure.
	ErrConfig = errors.New("configuration conflict")
)

// StructuralError reports a document missing an expected substructure,
// such as an apparatus without a lem reading or a reading without a
// required type attribute. Fatal: the current document's processing is
// aborted and no partial output is written.
type StructuralError struct {
	Element string // tag of the element missing structure (e.g., "app", "rdg")
	Message string // what was expected
	Err     error  // underlying error, if any
}

func (e *StructuralError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("structural violation in <%s>: %s", e.Element, e.Message)
	}
	return fmt.Sprintf("structural violation: %s", e.Message)
}

func (e *StructuralError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrStructure
}

// Mismatch records one apparatus whose readings disagree with the lemma
// on segment-marker counts.
type Mismatch struct {
	Apparatus string // best-effort identifier of the apparatus ("" if unlabeled)
	Lemma     int    // segment markers in the lemma reading
	Reading   int    // segment markers in the offending reading
}

func (m Mismatch) String() string {
	label := m.Apparatus
	if label == "" {
		label = "(unlabeled)"
	}
	return fmt.Sprintf("apparatus %s: reading has %d segment markers, lemma has %d", label, m.Reading, m.Lemma)
}

// ResegmentationError aggregates every mismatch found in a full validation
// scan. Validation never stops at the first mismatch; the caller gets the
// complete list and then rejects the operation.
type ResegmentationError struct {
	Mismatches []Mismatch
}

func (e *ResegmentationError) Error() string {
	if len(e.Mismatches) == 1 {
		return "resegmentation mismatch: " + e.Mismatches[0].String()
	}
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return fmt.Sprintf("resegmentation mismatch in %d apparatus entries: %s",
		len(e.Mismatches), strings.Join(parts, "; "))
}

func (e *ResegmentationError) Unwrap() error {
	return ErrResegmentation
}

// WitnessError reports a witness reference that could not be matched to
// any reading during witness projection. Each witness is required to
// appear in exactly one reading per apparatus; a miss is a fatal lookup
// failure, not a skippable gap.
type WitnessError struct {
	Witness   string // witness siglum
	Apparatus string // best-effort identifier of the apparatus
	Err       error  // underlying error, if any
}

func (e *WitnessError) Error() string {
	if e.Apparatus != "" {
		return fmt.Sprintf("witness %s matches no reading in apparatus %s", e.Witness, e.Apparatus)
	}
	return fmt.Sprintf("witness %s matches no reading", e.Witness)
}

func (e *WitnessError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrWitness
}

// ConfigError reports a normalization or ignore configuration that would
// eliminate required structural information. Rejected before any tree
// transformation begins.
type ConfigError struct {
	Field   string // configuration field at fault
	Message string // why the configuration is rejected
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration conflict in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration conflict: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// Helper functions for creating common errors

// NewStructural creates a StructuralError.
func NewStructural(element, message string) *StructuralError {
	return &StructuralError{Element: element, Message: message}
}

// NewWitness creates a WitnessError.
func NewWitness(witness, apparatus string) *WitnessError {
	return &WitnessError{Witness: witness, Apparatus: apparatus}
}

// NewConfig creates a ConfigError.
func NewConfig(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
