// Package keyvalue turns a go-simpler/env tagged configuration struct into
// sorted key/value pairs, and renders them as a shell script that sets the
// variables.
package keyvalue

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
)

// KV is a key/value pair.
type KV struct{ Key, Value string }

// KVSlice is a collection of key/value pairs.
type KVSlice []KV

func (kv KVSlice) Len() int           { return len(kv) }
func (kv KVSlice) Less(i, j int) bool { return kv[i].Key < kv[j].Key }
func (kv KVSlice) Swap(i, j int)      { kv[i], kv[j] = kv[j], kv[i] }

// EnvKV lists the `env` tagged fields of a config struct. Pointers are
// followed, string slices are joined with commas and fields without a tag are
// skipped.
func EnvKV(cfg any) (m KVSlice) {
	v := reflect.ValueOf(cfg)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		k := t.Field(i).Tag.Get("env")
		if k == "" || !t.Field(i).IsExported() {
			continue
		}
		var val string
		switch f := v.Field(i).Interface().(type) {
		case string:
			val = f
		case []string:
			val = strings.Join(f, ",")
		default:
			val = fmt.Sprint(f)
		}
		m = append(m, KV{k, val})
	}
	return
}

// PrintEnv renders the key/values of a config struct as a bash script.
func PrintEnv(cfg any, printer io.Writer) {
	_, _ = fmt.Fprintln(printer, "#!/usr/bin/env bash")
	kvs := EnvKV(cfg)
	sort.Sort(kvs)
	for _, v := range kvs {
		_, _ = fmt.Fprintf(printer, "export %s=%s\n", v.Key, quote(v.Value))
	}
}

// quote wraps values the shell would split or expand.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'$`\\;&|<>*?#") {
		return `"` + strings.NewReplacer(`"`, `\"`, `$`, `\$`, "`", "\\`", `\`, `\\`).Replace(s) + `"`
	}
	return s
}
