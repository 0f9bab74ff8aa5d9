package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration
var (
	ErrUnknownSetting = goerr.New("unknown setting")
	ErrInvalidValue   = goerr.New("invalid setting value")
)
