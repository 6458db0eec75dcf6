// Package env is an implementation of the env.Source interface from
// go-simpler.org
package env

import (
	"os"
	"strings"

	"keybunker.lol/chk"
)

// Env is a key/value map used to represent environment variables. This is
// implemented for go-simpler.org library.
type Env map[string]string

// GetEnv reads a file expected to represent a collection of KEY=value in
// standard shell environment variable format - ie, key usually in all upper
// case no spaces and words separated by underscore, value can have any
// separator, but usually comma, for an array of values. Blank lines, comments
// and a leading "export " are skipped, as written by keyvalue.PrintEnv.
func GetEnv(path string) (env Env, err error) {
	var s []byte
	env = make(Env)
	if s, err = os.ReadFile(path); chk.T(err) {
		return
	}
	for _, line := range strings.Split(string(s), "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return
}

// LookupEnv returns the raw string value associated with a provided key name,
// used as a custom environment variable loader for go-simpler.org/env to enable
// .env file loading.
func (env Env) LookupEnv(key string) (value string, ok bool) {
	value, ok = env[key]
	return
}

// Overlay returns the file values with the process environment on top, so a
// variable set in the shell wins over the file.
func (env Env) Overlay() (merged Env) {
	merged = make(Env, len(env))
	for k, v := range env {
		merged[k] = v
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	return
}
