package strata

import "errors"

// Sentinel errors returned (wrapped) by the engine. Match with errors.Is.
var (
	// ErrSchema indicates a malformed schema definition: duplicate field or
	// section names, attempts to rebind an already bound field, or mutation
	// of a sealed schema.
	ErrSchema = errors.New("invalid schema definition")

	// ErrConversion indicates a value could not be coerced to a field's
	// declared type.
	ErrConversion = errors.New("cannot convert value")

	// ErrUnknownField indicates strict construction received an undeclared
	// field name.
	ErrUnknownField = errors.New("unknown field")

	// ErrFrozen indicates a mutation was attempted on a frozen instance.
	ErrFrozen = errors.New("config is frozen")

	// ErrFieldNotFound indicates a field or path does not resolve inside an
	// instance's schema.
	ErrFieldNotFound = errors.New("field not found")

	// ErrReadOnly indicates a write was attempted against a source that does
	// not support write-back.
	ErrReadOnly = errors.New("source is read-only")

	// ErrDuplicateSource indicates a source name is already registered with
	// the engine.
	ErrDuplicateSource = errors.New("source already defined")

	// ErrSourceNotFound indicates no source with the given name is
	// registered with the engine.
	ErrSourceNotFound = errors.New("source not found")

	// ErrConfigNotFound indicates a file source's backing file does not
	// exist.
	ErrConfigNotFound = errors.New("config file not found")
)
