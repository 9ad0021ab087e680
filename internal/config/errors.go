package config

import (
	"errors"
)

// Sentinel errors returned by Load and Validate.
var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps failures reading the .env file, the YAML file or the environment.
	ErrLoadConfig = errors.New("load config failed")
)
