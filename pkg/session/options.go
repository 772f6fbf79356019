package session

import (
	"log/slog"
	"time"
)

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the time source. Default: time.Now.
func WithClock(clock Clock) Option {
	return func(r *Repository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithCodec sets the codec used for attribute values. Default: JSON.
func WithCodec(codec Codec) Option {
	return func(r *Repository) {
		if codec != nil {
			r.codec = codec
		}
	}
}

// WithPublisher sets the lifecycle event sink. Default: discard.
func WithPublisher(p Publisher) Option {
	return func(r *Repository) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithPrincipalResolver sets how a session's principal name is derived from
// its attributes. Default: decode the PRINCIPAL_NAME attribute.
func WithPrincipalResolver(resolver PrincipalResolver) Option {
	return func(r *Repository) {
		r.resolver = resolver
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repository) {
		if log != nil {
			r.log = log
		}
	}
}

// WithSaveMode sets the save mode. Default: SaveModeOnSetAttribute.
func WithSaveMode(mode SaveMode) Option {
	return func(r *Repository) {
		r.saveMode = mode
	}
}

// WithFlushMode sets the flush mode. Default: FlushModeOnSave.
func WithFlushMode(mode FlushMode) Option {
	return func(r *Repository) {
		r.flushMode = mode
	}
}

// WithDefaultMaxInactiveInterval sets the idle timeout applied to newly
// created sessions. A negative interval means sessions never expire.
// Default: 30 minutes.
func WithDefaultMaxInactiveInterval(d time.Duration) Option {
	return func(r *Repository) {
		r.defaultInterval = d
	}
}

// WithConfig applies an environment-driven Config in one call.
func WithConfig(cfg Config) Option {
	return func(r *Repository) {
		r.defaultInterval = cfg.MaxInactiveInterval
		r.saveMode = cfg.SaveMode
		r.flushMode = cfg.FlushMode
	}
}
