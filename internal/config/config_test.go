package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// reset clears global state between tests
func reset(t *testing.T) {
	t.Helper()
	viper.Reset()
	SetConfigPath("")
	Set(nil)
	t.Cleanup(func() {
		viper.Reset()
		SetConfigPath("")
		Set(nil)
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xin.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		reset(t)
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(tmpDir); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chdir(wd) })

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		config := Get()
		if config.Input.Method != "xtest" {
			t.Errorf("Expected default method xtest, got %s", config.Input.Method)
		}
		if config.Input.LineMax != 64 {
			t.Errorf("Expected default line_max 64, got %d", config.Input.LineMax)
		}
		if config.Layout.Command != "setxkbmap" || config.Layout.CommandMax != 128 {
			t.Errorf("Unexpected layout defaults: %+v", config.Layout)
		}
		if config.Layout.SentinelKey != "Super_L" {
			t.Errorf("Expected sentinel key Super_L, got %s", config.Layout.SentinelKey)
		}
	})

	t.Run("reads values from file", func(t *testing.T) {
		reset(t)
		SetConfigPath(writeConfig(t, `[input]
method = "sendevent"

[display]
name = ":1"

[layout]
command = "/usr/local/bin/setxkbmap"

[logging]
log_level = "debug"
`))

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		config := Get()
		if config.Input.Method != "sendevent" {
			t.Errorf("Expected method sendevent, got %s", config.Input.Method)
		}
		if config.Display.Name != ":1" {
			t.Errorf("Expected display :1, got %s", config.Display.Name)
		}
		if config.Layout.Command != "/usr/local/bin/setxkbmap" {
			t.Errorf("Expected custom layout command, got %s", config.Layout.Command)
		}
		// Unset keys keep their defaults
		if config.Input.LineMax != 64 {
			t.Errorf("Expected default line_max 64, got %d", config.Input.LineMax)
		}
		if config.Logging.LogLevel != "debug" {
			t.Errorf("Expected log level debug, got %s", config.Logging.LogLevel)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		reset(t)
		SetConfigPath(writeConfig(t, "[input]\nmethod = \"xtest\"\n"))
		t.Setenv("XIN_INPUT_METHOD", "sendevent")
		t.Setenv("XIN_SERVER_LISTEN", "0.0.0.0:2022")

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		if got := Get().Input.Method; got != "sendevent" {
			t.Errorf("Expected env override sendevent, got %s", got)
		}
		if got := Get().Server.Listen; got != "0.0.0.0:2022" {
			t.Errorf("Expected env override for listen address, got %s", got)
		}
	})

	t.Run("handles invalid TOML", func(t *testing.T) {
		reset(t)
		SetConfigPath(writeConfig(t, "[input\nmethod = 1"))

		if err := Init(); err == nil {
			t.Error("Expected error for invalid TOML")
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		reset(t)
		SetConfigPath(writeConfig(t, "[input]\nline_max = 2\n"))

		err := Init()
		if err == nil || !strings.Contains(err.Error(), "line_max") {
			t.Errorf("Expected line_max error, got %v", err)
		}
		if Get() != &DefaultConfig {
			t.Error("Failed Init must not replace the current config")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "small line buffer", modify: func(c *Config) { c.Input.LineMax = 0 }, wantErr: "line_max"},
		{name: "empty command", modify: func(c *Config) { c.Layout.Command = "" }, wantErr: "layout.command"},
		{name: "no room for name", modify: func(c *Config) { c.Layout.CommandMax = 10 }, wantErr: "command_max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig
			tt.modify(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigPathResolution(t *testing.T) {
	t.Run("xdg config home", func(t *testing.T) {
		reset(t)
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

		if got := GetConfigPath(); got != "/tmp/xdg/xin/xin.toml" {
			t.Errorf("Expected /tmp/xdg/xin/xin.toml, got %s", got)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		reset(t)
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/testuser")

		if got := GetConfigPath(); got != "/home/testuser/.config/xin/xin.toml" {
			t.Errorf("Expected home config path, got %s", got)
		}
	})

	t.Run("override wins", func(t *testing.T) {
		reset(t)
		SetConfigPath("/srv/xin.toml")

		if got := GetConfigPath(); got != "/srv/xin.toml" {
			t.Errorf("Expected override path, got %s", got)
		}
	})
}

func TestSave(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "nested", "xin.toml")
	SetConfigPath(path)

	// A missing override file is not an error
	if err := Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	viper.Set("input.method", "sendevent")

	if err := Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "sendevent") || !strings.Contains(string(data), "setxkbmap") {
		t.Errorf("Saved config is missing values:\n%s", data)
	}
}
