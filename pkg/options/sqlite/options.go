// Package sqliteopts provides options for the SQLite metadata database.
package sqliteopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/synaptiq/knowledged/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains SQLite database configuration.
type Options struct {
	// Path is the database file path. ":memory:" gives an in-memory database.
	Path string `json:"path" mapstructure:"path"`

	// MaxOpenConns bounds open connections. SQLite serializes writers, so
	// keep this small.
	MaxOpenConns int `json:"max-open-conns" mapstructure:"max-open-conns"`

	// MaxIdleConns bounds idle connections in the pool.
	MaxIdleConns int `json:"max-idle-conns" mapstructure:"max-idle-conns"`

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration `json:"conn-max-lifetime" mapstructure:"conn-max-lifetime"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Path:            "_output/knowledged.db",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, options.Join(prefixes...)+"sqlite.path", o.Path, "SQLite database file path.")
	fs.IntVar(&o.MaxOpenConns, options.Join(prefixes...)+"sqlite.max-open-conns", o.MaxOpenConns, "Maximum number of open connections.")
	fs.IntVar(&o.MaxIdleConns, options.Join(prefixes...)+"sqlite.max-idle-conns", o.MaxIdleConns, "Maximum number of idle connections.")
	fs.DurationVar(&o.ConnMaxLifetime, options.Join(prefixes...)+"sqlite.conn-max-lifetime", o.ConnMaxLifetime, "Maximum connection reuse time.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("sqlite path is required"))
	}
	if o.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("sqlite max-open-conns must be positive"))
	}
	return errs
}
