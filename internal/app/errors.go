package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound       = errors.New("not found")
	ErrNoSchedule     = errors.New("no schedule snapshot for project")
	ErrNoPipeline     = errors.New("pipeline is not configured")
	ErrEmptyChangeSet = errors.New("no change requests given")
)
