package endpoint

//go:generate errtrace -w .

import (
	"log/slog"
	"time"

	"github.com/coresip/coresip/log"
	"github.com/coresip/coresip/sip"
	"github.com/coresip/coresip/transport"
)

// Config is the endpoint's full configuration surface, per §6's
// enumerated list: transaction timers, the user agent string, per-listener
// TLS settings, WebSocket origin policy, dialog auth-retry, logging, and
// stream idle eviction.
type Config struct {
	T1 time.Duration
	T2 time.Duration
	T4 time.Duration

	TransactionTimerInterval time.Duration

	UserAgent string

	TLSConfig       *transport.TLSConfig
	AcceptAnyOrigin bool

	AuthRetry bool

	Logger    *slog.Logger
	LogFormat string

	IdleConnTimeout time.Duration
	DialogGrace     time.Duration

	Contact *sip.NameAddr
}

// defaultConfig returns the documented defaults for every field, per §6.
func defaultConfig() Config {
	return Config{
		T1:                       500 * time.Millisecond,
		T2:                       4 * time.Second,
		T4:                       5 * time.Second,
		TransactionTimerInterval: 20 * time.Millisecond,
		UserAgent:                "coresip",
		AuthRetry:                true,
		Logger:                   log.Default,
		LogFormat:                "console",
		IdleConnTimeout:          5 * time.Minute,
		DialogGrace:              32 * time.Second,
	}
}

// Option configures an Endpoint at construction time.
type Option func(*Config)

func WithT1(d time.Duration) Option { return func(c *Config) { c.T1 = d } }
func WithT2(d time.Duration) Option { return func(c *Config) { c.T2 = d } }
func WithT4(d time.Duration) Option { return func(c *Config) { c.T4 = d } }

func WithUserAgent(ua string) Option { return func(c *Config) { c.UserAgent = ua } }

func WithTLSConfig(cfg *transport.TLSConfig) Option {
	return func(c *Config) { c.TLSConfig = cfg }
}

func WithAcceptAnyOrigin(v bool) Option { return func(c *Config) { c.AcceptAnyOrigin = v } }

func WithAuthRetry(v bool) Option { return func(c *Config) { c.AuthRetry = v } }

func WithLogger(logger *slog.Logger) Option { return func(c *Config) { c.Logger = logger } }

// WithLogFormat selects among the teacher's three preset loggers:
// "console" (log.Default), "dev" (log.Dev, verbose) or "noop" (log.Noop,
// discards everything). Unrecognized values leave Logger untouched.
func WithLogFormat(format string) Option {
	return func(c *Config) {
		c.LogFormat = format
		switch format {
		case "console":
			c.Logger = log.Default
		case "dev":
			c.Logger = log.Dev
		case "noop":
			c.Logger = log.Noop
		}
	}
}

func WithIdleConnTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleConnTimeout = d }
}

func WithDialogGrace(d time.Duration) Option { return func(c *Config) { c.DialogGrace = d } }

func WithContact(contact *sip.NameAddr) Option { return func(c *Config) { c.Contact = contact } }
