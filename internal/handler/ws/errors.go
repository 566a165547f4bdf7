package ws

import "errors"

var (
	errReadOnly       = errors.New("feed is read-only")
	errUnknownCommand = errors.New("unknown command")
)
