package domain

import "errors"

var (
	// ErrMalformedRequest rejects a whole request: no partial output is produced.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrBundleSchema means the model bundle does not match the features the engine builds.
	ErrBundleSchema = errors.New("model bundle schema mismatch")

	// ErrReferenceSchema means reference data violates its schema contract.
	ErrReferenceSchema = errors.New("reference data schema mismatch")
)
