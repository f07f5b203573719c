package errs

import "errors"

var (
	ErrLoopClosed     = errors.New("event loop is closed")
	ErrNilHandler     = errors.New("nil event handler")
	ErrCopierShutdown = errors.New("copier is going to be shutdown")
	ErrEmptySource    = errors.New("empty source buffer")
)
