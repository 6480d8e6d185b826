// Zaparoo Tap
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Tap.
//
// Zaparoo Tap is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Tap is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Tap.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDir = "/config"

func newTestConfig(t *testing.T, fs afero.Fs) *Instance {
	t.Helper()
	cfg, err := NewConfig(fs, testDir, BaseDefaults)
	require.NoError(t, err)
	return cfg
}

//nolint:paralleltest // uses t.Setenv
func TestNewConfig_WritesDefaults(t *testing.T) {
	t.Setenv(CfgEnv, "")
	fs := afero.NewMemMapFs()

	cfg := newTestConfig(t, fs)

	path := filepath.Join(testDir, CfgFile)
	assert.Equal(t, path, cfg.Path())
	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.NotEmpty(t, cfg.DeviceID())
	assert.Equal(t, DriverPCSC, cfg.ReaderDriver())
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout())
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout())
	assert.Equal(t, 30*time.Second, cfg.SessionTimeout())
	assert.Equal(t, time.Second, cfg.PresenceWindow())
	assert.Equal(t, "en", cfg.Language())
	assert.Equal(t, DefaultMaxPages, cfg.MaxPages())
	assert.True(t, cfg.APIEnabled())
	assert.Equal(t, ":7498", cfg.APIListen())
	assert.True(t, cfg.DiscoveryEnabled())
	assert.False(t, cfg.ErrorReporting())
	assert.Empty(t, cfg.MQTT().Broker)

	// a reload keeps the generated id
	id := cfg.DeviceID()
	reloaded := newTestConfig(t, fs)
	assert.Equal(t, id, reloaded.DeviceID())
}

//nolint:paralleltest // uses t.Setenv
func TestNewConfig_EnvPath(t *testing.T) {
	path := "/elsewhere/custom.toml"
	t.Setenv(CfgEnv, path)
	fs := afero.NewMemMapFs()

	cfg := newTestConfig(t, fs)
	assert.Equal(t, path, cfg.Path())
	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.True(t, exists)
}

//nolint:paralleltest // uses t.Setenv
func TestLoad_FileValuesOverDefaults(t *testing.T) {
	t.Setenv(CfgEnv, "")
	fs := afero.NewMemMapFs()
	data := `config_schema = 1
debug_logging = true

[readers]
driver = "simulated"
reader = "ACS ACR122U PICC Interface 0"
poll_interval = "100ms"
language = "pt-BR"

[api]
port = 8080
allowed_origins = ["http://localhost:3000"]

[mqtt]
broker = "tcp://broker.local:1883"
topic = "zaparoo/tap"
`
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte(data), 0o600))

	cfg := newTestConfig(t, fs)
	assert.True(t, cfg.DebugLogging())
	assert.Equal(t, DriverSimulated, cfg.ReaderDriver())
	assert.Equal(t, "ACS ACR122U PICC Interface 0", cfg.ReaderName())
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, "pt-BR", cfg.Language())
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout(), "unset keys keep defaults")
	assert.Equal(t, 8080, cfg.APIPort())
	assert.Equal(t, ":8080", cfg.APIListen())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins())
	assert.Equal(t, MQTT{Broker: "tcp://broker.local:1883", Topic: "zaparoo/tap"}, cfg.MQTT())
}

//nolint:paralleltest // uses t.Setenv
func TestLoad_Errors(t *testing.T) {
	t.Setenv(CfgEnv, "")

	tests := []struct {
		wantErr error
		name    string
		data    string
	}{
		{
			name:    "schema mismatch",
			data:    "config_schema = 2\n",
			wantErr: ErrSchemaMismatch,
		},
		{
			name:    "unknown driver",
			data:    "config_schema = 1\n[readers]\ndriver = \"libnfc\"\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "poll interval too short",
			data:    "config_schema = 1\n[readers]\npoll_interval = \"10ms\"\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "poll interval too long",
			data:    "config_schema = 1\n[readers]\npoll_interval = \"5s\"\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "bad duration",
			data:    "config_schema = 1\n[readers]\nread_timeout = \"soon\"\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "zero timeout",
			data:    "config_schema = 1\n[readers]\nwrite_timeout = \"0s\"\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "bad language",
			data:    "config_schema = 1\n[readers]\nlanguage = \"not a language\"\n",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "mqtt topic missing",
			data:    "config_schema = 1\n[mqtt]\nbroker = \"tcp://broker.local:1883\"\n",
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte(tt.data), 0o600))

			_, err := NewConfig(fs, testDir, BaseDefaults)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("not toml", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte("[readers"), 0o600))
		_, err := NewConfig(fs, testDir, BaseDefaults)
		require.Error(t, err)
	})
}

func TestValidate_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		edit func(*Values)
		name string
		want string
	}{
		{
			name: "poll interval",
			edit: func(v *Values) { v.Readers.PollInterval = "10ms" },
			want: "poll_interval must be at least 50ms",
		},
		{
			name: "read timeout",
			edit: func(v *Values) { v.Readers.ReadTimeout = "0s" },
			want: "read_timeout must be at least 1ms",
		},
		{
			name: "driver",
			edit: func(v *Values) { v.Readers.Driver = "libnfc" },
			want: "driver must be one of: pcsc foreground delegate simulated",
		},
		{
			name: "mqtt topic",
			edit: func(v *Values) { v.MQTT = MQTT{Broker: "tcp://broker.local:1883"} },
			want: "topic is required when broker is set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			vals := BaseDefaults
			tt.edit(&vals)
			err := Validate(&vals)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

//nolint:paralleltest // uses t.Setenv
func TestPresenceWindowZero(t *testing.T) {
	t.Setenv(CfgEnv, "")
	fs := afero.NewMemMapFs()
	data := "config_schema = 1\n[readers]\npresence_window = \"0s\"\n"
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte(data), 0o600))

	cfg := newTestConfig(t, fs)
	assert.Equal(t, time.Duration(0), cfg.PresenceWindow())
}

//nolint:paralleltest // uses t.Setenv
func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(CfgEnv, "")
	fs := afero.NewMemMapFs()
	cfg := newTestConfig(t, fs)

	cfg.SetReaderDriver(DriverForeground)
	cfg.SetReaderName("Android Device NFC")
	cfg.SetAPIPort(9000)
	cfg.SetDebugLogging(true)
	cfg.SetErrorReporting(true)
	require.NoError(t, cfg.Save())

	reloaded := newTestConfig(t, fs)
	assert.Equal(t, cfg.Readers(), reloaded.Readers())
	assert.Equal(t, 9000, reloaded.APIPort())
	assert.True(t, reloaded.DebugLogging())
	assert.True(t, reloaded.ErrorReporting())
}

func TestDefaultConfigDir(t *testing.T) {
	t.Parallel()
	assert.Equal(t, AppName, filepath.Base(DefaultConfigDir()))
}
