package vdb

import "errors"

var (
	// ErrDatabaseOpen is returned when a coverage database cannot be opened.
	ErrDatabaseOpen = errors.New("failed to open coverage database")

	// ErrMerge is returned when folding two test records yields no result.
	ErrMerge = errors.New("failed to merge test records")

	// ErrMetricResolution is returned when an instance's metric handle or its
	// block iterator cannot be resolved.
	ErrMetricResolution = errors.New("failed to resolve metric")

	// ErrSessionClosed is returned by operations on a closed Session.
	ErrSessionClosed = errors.New("session already closed")
)
