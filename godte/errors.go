package godte

import "errors"

// Errors
var (
	ErrUnknownNode    = errors.New("unknown graph node")
	ErrDuplicateLabel = errors.New("relabel produced duplicate node label")
	ErrEdgeNotFound   = errors.New("graph edge not found")
	ErrNodeLimit      = errors.New("graph node limit reached")
	ErrBadTopology    = errors.New("bad topology expression")
	ErrBadStartNode   = errors.New("start node not present in seed topology")

	// ErrDeadEnd is the one expected, recoverable condition: the current
	// node has no outgoing edges. Engine state is left untouched.
	ErrDeadEnd = errors.New("no transition possible from current node")
)
