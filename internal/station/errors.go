package station

import "errors"

// ErrNoHeat is returned by board reads when no heat is configured.
var ErrNoHeat = errors.New("no round heat configured")
