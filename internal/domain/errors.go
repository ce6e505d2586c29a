package domain

import "errors"

var (
	// ErrUnknownEntity is returned when a report key is not registered.
	ErrUnknownEntity = errors.New("unknown report entity")
	// ErrQueryExecutionFailed wraps data store failures.
	ErrQueryExecutionFailed = errors.New("report query failed")
	// ErrRenderingEngineUnavailable is returned when the browser used for
	// PDF capture cannot be launched or fails while rendering.
	ErrRenderingEngineUnavailable = errors.New("rendering engine unavailable")
	// ErrExportEncodingFailed is returned when a document cannot be serialized.
	ErrExportEncodingFailed = errors.New("export encoding failed")
)
