package repository

import (
	"errors"

	"github.com/okian/heatscore/internal/domain/model"
)

// Sentinel kinds for store errors. Resolution failures reuse the domain
// errors so callers can classify them with model.IsPermanent.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidScope       = errors.New("scope needs round_heat_id or round_id")
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
	ErrSeedFile           = errors.New("invalid seed file")
	ErrRunResultNotFound  = model.ErrRunResultNotFound
	ErrAmbiguousRunResult = model.ErrAmbiguousRunResult
)
