/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package expiry

import (
	"embed"
	"os"
	"path"
	"path/filepath"
)

// DefaultResourceName is the name of the bundled expiry throttle definitions.
const DefaultResourceName = "expiry-throttle.json"

//go:embed resources/expiry-throttle.json
var bundledResources embed.FS

// ResourceLoader returns raw bytes of a named resource.
// The second returned value is false if the resource is absent or cannot be read.
type ResourceLoader interface {
	LoadResource(name string) ([]byte, bool)
}

// ResourceLoaderFunc is an adapter to allow the use of ordinary functions as ResourceLoader.
type ResourceLoaderFunc func(name string) ([]byte, bool)

// LoadResource implements ResourceLoader.
func (f ResourceLoaderFunc) LoadResource(name string) ([]byte, bool) {
	return f(name)
}

// DirLoader loads resources from files of a directory. Absolute names are used as is.
type DirLoader struct {
	Dir string
}

// LoadResource implements ResourceLoader.
func (l DirLoader) LoadResource(name string) ([]byte, bool) {
	if name == "" {
		return nil, false
	}
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.Dir, name)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

// DefaultLoader loads resources bundled into the binary.
type DefaultLoader struct{}

// LoadResource implements ResourceLoader.
func (DefaultLoader) LoadResource(name string) ([]byte, bool) {
	data, err := bundledResources.ReadFile(path.Join("resources", name))
	if err != nil {
		return nil, false
	}
	return data, true
}

// FallbackLoader tries loaders in order and returns the first resource found.
type FallbackLoader []ResourceLoader

// LoadResource implements ResourceLoader.
func (l FallbackLoader) LoadResource(name string) ([]byte, bool) {
	for _, loader := range l {
		if data, ok := loader.LoadResource(name); ok {
			return data, true
		}
	}
	return nil, false
}
