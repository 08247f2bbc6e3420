package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidTitle        = errors.New("invalid title")
	ErrInvalidPriority     = errors.New("invalid priority")
	ErrInvalidMethodology  = errors.New("invalid methodology")
	ErrInvalidDocumentKind = errors.New("invalid document kind")
	ErrInvalidText         = errors.New("invalid text")
	ErrInvalidRequirement  = errors.New("invalid requirement")
	ErrInvalidWBS          = errors.New("invalid wbs")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrInvalidChangeOp     = errors.New("invalid change request op")
	ErrInvalidRiskLevel    = errors.New("invalid risk level")
	ErrInvalidSnapshotKind = errors.New("invalid snapshot kind")
)
