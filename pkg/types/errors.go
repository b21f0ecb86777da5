package types

import "errors"

// Error kinds shared by every layer
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrIO               = errors.New("i/o failure")
	ErrNotProject       = errors.New("not an audiomark project")
	ErrUnsupportedMedia = errors.New("unsupported media")
	ErrBusy             = errors.New("operation already in progress")
)
