// Package config is the environment configuration of a signer or wallet
// service.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"keybunker.lol"
	"keybunker.lol/chk"
	"keybunker.lol/config/keyvalue"
	envfile "keybunker.lol/env"
	"keybunker.lol/log"
	"keybunker.lol/lol"
)

// C is the configuration of a key custodian. Values come from the environment,
// then from a .env file in the profile directory for anything the environment
// does not set.
type C struct {
	AppName         string        `env:"APP_NAME" default:"keybunker" usage:"name used for the profile directory"`
	Profile         string        `env:"PROFILE" usage:"directory for the session store and .env file, default $XDG_DATA_HOME/<APP_NAME>"`
	LogLevel        string        `env:"LOG_LEVEL" default:"info" usage:"off, fatal, error, warn, info, debug or trace"`
	SessionMaxAge   time.Duration `env:"SESSION_MAX_AGE" default:"720h" usage:"idle time after which a session is removed"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" default:"10m" usage:"how often idle sessions are swept"`
	SessionIDs      string        `env:"SESSION_IDS" default:"random" usage:"random, or hashed for ids derived from the keys and time"`
	PowMaxAttempts  uint64        `env:"POW_MAX_ATTEMPTS" default:"4194304" usage:"hash budget of a proof of work request"`
	PowTimeout      time.Duration `env:"POW_TIMEOUT" default:"10s" usage:"wall clock budget of a proof of work request"`
	PowWorkers      int           `env:"POW_WORKERS" default:"0" usage:"proof of work threads, 0 for one per CPU"`
	Persist         bool          `env:"PERSIST" default:"false" usage:"keep sessions in a badger store in the profile directory"`
	Relays          []string      `env:"RELAYS" usage:"relays advertised in the bunker url, comma separated"`
	Secret          string        `env:"SECRET" usage:"secret a client must present to be granted the permissions it requests, without one clients get connect alone"`
	ServeLimit      int           `env:"SERVE_LIMIT" default:"64" usage:"maximum requests handled concurrently"`
}

// Load reads the configuration and applies the log level.
func Load() (c *C, err error) {
	c = &C{}
	if err = env.Load(c, &env.Options{SliceSep: ","}); chk.E(err) {
		return
	}
	if c.Profile == "" {
		c.Profile = filepath.Join(xdg.DataHome, c.AppName)
	}
	envPath := filepath.Join(c.Profile, ".env")
	if _, err = os.Stat(envPath); err == nil {
		var e envfile.Env
		if e, err = envfile.GetEnv(envPath); chk.E(err) {
			return
		}
		profile := c.Profile
		if err = env.Load(c, &env.Options{SliceSep: ",", Source: e.Overlay()}); chk.E(err) {
			return
		}
		c.Profile = profile
		log.D.F("loaded configuration from %s", envPath)
	}
	err = nil
	lol.SetLogLevel(c.LogLevel)
	return
}

// StorePath is the directory of the persistent session store.
func (c *C) StorePath() string { return filepath.Join(c.Profile, "sessions") }

// Usage prints the variables that configure the service.
func (c *C) Usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n%s %s\n\nenvironment variables:\n\n", c.AppName, keybunker.Version)
	env.Usage(c, w, nil)
}

// PrintEnv prints the configuration as a shell script, which can be saved as
// the .env file of the profile.
func (c *C) PrintEnv(w io.Writer) { keyvalue.PrintEnv(*c, w) }
