package scoring

import "errors"

// ErrUnknownRule is returned by ParseRule.
var ErrUnknownRule = errors.New("unknown scoring rule")
