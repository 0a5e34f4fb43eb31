package audit

import "errors"

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("audit: log closed")
