package mirror

import (
	"testing"
	"time"
)

func TestConfig_durations(t *testing.T) {
	conf := Config{UpdateInterval: 60, SyncTimeout: 30}

	if got, want := conf.Interval(), 60*time.Second; got != want {
		t.Errorf("Interval() = %v, want %v", got, want)
	}
	if got, want := conf.Timeout(), 30*time.Second; got != want {
		t.Errorf("Timeout() = %v, want %v", got, want)
	}

	// zero sync_timeout means unbounded cycles
	conf.SyncTimeout = 0
	if got := conf.Timeout(); got != 0 {
		t.Errorf("Timeout() = %v, want 0", got)
	}
}

func TestConfig_validate(t *testing.T) {
	valid := Config{
		Remote:         "git@github.com:org/index.git",
		Path:           "/var/lib/index-mirror",
		UpdateInterval: 60,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"with-timeout", func(c *Config) { c.SyncTimeout = 120 }, false},
		{"empty-remote", func(c *Config) { c.Remote = "" }, true},
		{"relative-path", func(c *Config) { c.Path = "var/lib/index-mirror" }, true},
		{"empty-path", func(c *Config) { c.Path = "" }, true},
		{"interval-too-short", func(c *Config) { c.UpdateInterval = 0 }, true},
		{"negative-timeout", func(c *Config) { c.SyncTimeout = -10 }, true},
		{"github-app-complete", func(c *Config) {
			c.Auth.GithubAppID = "1234"
			c.Auth.GithubAppInstallationID = "5678"
			c.Auth.GithubAppPrivateKeyPath = "/etc/keys/app.pem"
		}, false},
		{"github-app-partial", func(c *Config) {
			c.Auth.GithubAppID = "1234"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := valid
			tt.mutate(&conf)
			if err := conf.validate(); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
