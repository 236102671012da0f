package audit

import "errors"

// ErrInvalidInput indicates an audit entry without operator or action.
var ErrInvalidInput = errors.New("invalid audit input")
