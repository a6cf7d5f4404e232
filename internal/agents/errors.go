package agents

import "errors"

var (
	ErrAgentNotFound   = errors.New("agent not found")
	ErrCommandNotFound = errors.New("command not found")
	ErrInvalidToken    = errors.New("invalid agent token")
	ErrEmptyCommand    = errors.New("command text is empty")
	ErrEmptyMessage    = errors.New("notification message is empty")
)
