package postgres

import "errors"

var (
	ErrFailedToParseConfig = errors.New("postgres: failed to parse connection config")
	ErrConnectionFailed    = errors.New("postgres: failed to establish connection")
	ErrHealthcheckFailed   = errors.New("postgres: healthcheck failed")
	ErrSetDialect          = errors.New("postgres: failed to set goose dialect")
	ErrApplyMigrations     = errors.New("postgres: failed to apply migrations")
)
