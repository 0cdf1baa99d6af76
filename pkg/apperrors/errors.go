package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrNoGroundTruth   = errors.New("no ground truth graph available")
	ErrUnknownTable    = errors.New("table is not part of the SAP schema")
	ErrQueryNotAllowed = errors.New("statement type not allowed for generated queries")
)
