// Package configtest has helpers for tests that need configuration
// documents.
package configtest

import (
	"embed"
	"io/fs"

	"github.com/mitchellh/go-testing-interface"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
)

// Fixture names.
const (
	Plain       = "config.json"
	WithZone    = "config-with-zone.json"
	WithoutName = "config-without-name.json"
	Full        = "full.json"
	Invalid     = "invalid.json"
)

//go:embed testdata/*.json
var fixtures embed.FS

// FS returns the fixtures rooted so that "classpath:dynamic/<name>"
// resolves to a fixture.
func FS() fs.FS {
	sub, err := fs.Sub(fixtures, "testdata")
	if err != nil {
		panic(err)
	}

	return prefixFS{prefix: "dynamic/", fs: sub}
}

// Raw returns the named fixture document.
func Raw(t testing.T, name string) string {
	t.Helper()

	data, err := fixtures.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("err: %s", err)
	}

	return string(data)
}

// Config returns the named fixture decoded under property key
// config.PropertyName("test").
func Config(t testing.T, name string) *config.Config {
	t.Helper()

	c, err := config.Decode(config.PropertyName("test"), Raw(t, name))
	if err != nil {
		t.Fatalf("err: %s", err)
	}

	return c
}

type prefixFS struct {
	prefix string
	fs     fs.FS
}

func (p prefixFS) Open(name string) (fs.File, error) {
	if len(name) < len(p.prefix) || name[:len(p.prefix)] != p.prefix {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return p.fs.Open(name[len(p.prefix):])
}
