package storage

import (
	"fmt"
)

// Options configures a Postgres-backed Store.
type Options struct {
	// URL is a postgres connection string. $<UsernameEnvVar> and
	// $<PasswordEnvVar> are substituted from the environment before the
	// pool is opened, so credentials never need to live in the URL
	// itself on disk or in process args.
	URL string

	UsernameEnvVar string
	PasswordEnvVar string

	// MaxConns bounds the pgx pool's connection count.
	MaxConns int32
}

func (o *Options) setDefaults() {
	if o.UsernameEnvVar == "" {
		o.UsernameEnvVar = "IGOR_DB_USER"
	}
	if o.PasswordEnvVar == "" {
		o.PasswordEnvVar = "IGOR_DB_PASS"
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 10
	}
}

func (o *Options) validate() error {
	if o.URL == "" {
		return fmt.Errorf("storage: URL is required")
	}
	return nil
}
