/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package expiry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "expiry.yaml"), []byte("buckets: []"), 0o600))
	loader := DirLoader{Dir: dir}

	data, ok := loader.LoadResource("expiry.yaml")
	require.True(t, ok)
	require.Equal(t, "buckets: []", string(data))

	data, ok = DirLoader{Dir: "/nonexistent"}.LoadResource(filepath.Join(dir, "expiry.yaml"))
	require.True(t, ok, "absolute names should not be joined with the directory")
	require.Equal(t, "buckets: []", string(data))

	_, ok = loader.LoadResource("missing.yaml")
	require.False(t, ok)
	_, ok = loader.LoadResource("")
	require.False(t, ok)
}

func TestDefaultLoader(t *testing.T) {
	data, ok := DefaultLoader{}.LoadResource(DefaultResourceName)
	require.True(t, ok)
	require.Contains(t, string(data), "ExpiryWorkLimits")

	_, ok = DefaultLoader{}.LoadResource("throttles.json")
	require.False(t, ok)
}

func TestFallbackLoader(t *testing.T) {
	var calls []string
	recording := func(name string, found bool) ResourceLoader {
		return ResourceLoaderFunc(func(resource string) ([]byte, bool) {
			calls = append(calls, name)
			if !found {
				return nil, false
			}
			return []byte(name + ":" + resource), true
		})
	}

	loader := FallbackLoader{recording("first", false), recording("second", true), recording("third", true)}
	data, ok := loader.LoadResource("expiry.json")
	require.True(t, ok)
	require.Equal(t, "second:expiry.json", string(data))
	require.Equal(t, []string{"first", "second"}, calls)

	_, ok = FallbackLoader{recording("only", false)}.LoadResource("expiry.json")
	require.False(t, ok)
	_, ok = FallbackLoader{}.LoadResource("expiry.json")
	require.False(t, ok)
}
