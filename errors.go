package hubbot

import (
	"errors"
)

var (
	ErrNoClient      = errors.New("router: no client attached")
	ErrConfigInvalid = errors.New("router: configuration source returned no config")

	ErrCommandConflict = errors.New("commands: command name already registered")

	ErrSessionGone = errors.New("client: session is not established")
)
