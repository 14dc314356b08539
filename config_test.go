package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/utilitywarehouse/index-mirror/mirror"
)

func TestParseConfig(t *testing.T) {
	yamlData := []byte(`
repo:
  git_url: git@github.com:org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
  sync_timeout: 120
  auth:
    ssh_key_path: /etc/keys/id_rsa
    ssh_known_hosts_path: /etc/keys/known_hosts
web:
  address: 0.0.0.0
  port: 8080
  max_connections: 16
  metrics_address: 127.0.0.1:9090
`)

	want := &Config{
		Repo: mirror.Config{
			Remote:         "git@github.com:org/crates-index.git",
			Path:           "/var/lib/index-mirror",
			UpdateInterval: 60,
			SyncTimeout:    120,
			Auth: mirror.Auth{
				SSHKeyPath:        "/etc/keys/id_rsa",
				SSHKnownHostsPath: "/etc/keys/known_hosts",
			},
		},
		Web: WebConfig{
			Address:        "0.0.0.0",
			Port:           8080,
			MaxConnections: 16,
			MetricsAddress: "127.0.0.1:9090",
		},
	}

	got, err := parseConfig(yamlData)
	if err != nil {
		t.Fatalf("parseConfig() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfig_defaults(t *testing.T) {
	yamlData := []byte(`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
web:
  address: 127.0.0.1
  port: 8080
`)

	got, err := parseConfig(yamlData)
	if err != nil {
		t.Fatalf("parseConfig() error = %v", err)
	}
	if got.Web.MaxConnections != defaultMaxConnections {
		t.Errorf("max_connections = %d, want default %d", got.Web.MaxConnections, defaultMaxConnections)
	}
	if got.Web.MetricsAddress != "" {
		t.Errorf("metrics_address = %q, want metrics disabled by default", got.Web.MetricsAddress)
	}
}

func TestParseConfig_errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing-repo-section",
			`
web:
  address: 127.0.0.1
  port: 8080
`,
			"repo config section is missing",
		},
		{
			"missing-web-section",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
`,
			"web config section is missing",
		},
		{
			"unexpected-top-level-key",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
web:
  address: 127.0.0.1
  port: 8080
webhook:
  address: 127.0.0.1
`,
			"unexpected key: .webhook",
		},
		{
			"unexpected-repo-key",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_intervals: 60
web:
  address: 127.0.0.1
  port: 8080
`,
			"unexpected key: .repo.update_intervals",
		},
		{
			"unexpected-auth-key",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
  auth:
    sshKeyPath: /etc/keys/id_rsa
web:
  address: 127.0.0.1
  port: 8080
`,
			"unexpected key: .repo.auth.sshKeyPath",
		},
		{
			"unexpected-web-key",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
web:
  address: 127.0.0.1
  port: 8080
  workers: 8
`,
			"unexpected key: .web.workers",
		},
		{
			"port-out-of-range",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
web:
  address: 127.0.0.1
  port: 70000
`,
			"out of range",
		},
		{
			"empty-address",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
web:
  address: ""
  port: 8080
`,
			"address cannot be empty",
		},
		{
			"negative-max-connections",
			`
repo:
  git_url: https://github.com/org/crates-index.git
  path: /var/lib/index-mirror
  update_interval: 60
web:
  address: 127.0.0.1
  port: 8080
  max_connections: -1
`,
			"max_connections must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("parseConfig() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("parseConfig() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
