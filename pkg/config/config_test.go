package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	Foo string        `yaml:"foo"`
	Bar string        `yaml:"bar"`
	Sub fakeSubConfig `yaml:"sub"`
}

type fakeSubConfig struct {
	Car int `yaml:"car"`
}

func writeConfig(t *testing.T, s string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "murmur.yaml")
	require.NoError(t, os.WriteFile(path, []byte(s), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		path := writeConfig(t, `foo: val1
bar: val2
sub:
  car: 5`)

		var conf fakeConfig
		assert.NoError(t, Load(&conf, path, false))

		assert.Equal(t, "val1", conf.Foo)
		assert.Equal(t, "val2", conf.Bar)
		assert.Equal(t, 5, conf.Sub.Car)
	})

	t.Run("expand env", func(t *testing.T) {
		t.Setenv("MURMUR_VAL1", "val1")
		t.Setenv("MURMUR_VAL2", "val2")

		path := writeConfig(t, `foo: $MURMUR_VAL1
bar: ${MURMUR_VAL2:default}
sub:
  car: ${MURMUR_VAL3:5}`)

		var conf fakeConfig
		assert.NoError(t, Load(&conf, path, true))

		assert.Equal(t, "val1", conf.Foo)
		assert.Equal(t, "val2", conf.Bar)
		assert.Equal(t, 5, conf.Sub.Car)
	})

	t.Run("expand env disabled", func(t *testing.T) {
		t.Setenv("MURMUR_VAL1", "val1")

		path := writeConfig(t, `foo: $MURMUR_VAL1`)

		var conf fakeConfig
		assert.NoError(t, Load(&conf, path, false))
		assert.Equal(t, "$MURMUR_VAL1", conf.Foo)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeConfig(t, `unknown: xyz`)

		var conf fakeConfig
		assert.Error(t, Load(&conf, path, false))
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, `invalid yaml...`)

		var conf fakeConfig
		assert.Error(t, Load(&conf, path, false))
	})

	t.Run("not found", func(t *testing.T) {
		var conf fakeConfig
		assert.Error(t, Load(&conf, "/a/b/c/notfound", false))
	})
}
