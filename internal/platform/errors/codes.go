// Package errors provides coded domain errors for protection storage.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Storage errors
	CodeStorageUnavailable     Code = "STORAGE_UNAVAILABLE"
	CodeSchemaConflict         Code = "SCHEMA_CONFLICT"
	CodeMalformedExtensionData Code = "MALFORMED_EXTENSION_DATA"
	CodeNotFound               Code = "NOT_FOUND"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Migration errors
	CodeMigrationFailed Code = "MIGRATION_FAILED"
)

