package mirror

import (
	"fmt"
	"path/filepath"
	"time"
)

// MinAllowedInterval is the minimum allowed time between sync cycles
const MinAllowedInterval = time.Second

// Config represents the config for the mirrored repository
// of the given remote.
type Config struct {
	// git URL of the remote repo to mirror
	Remote string `yaml:"git_url"`

	// Path is the absolute path of the mirror's working tree.
	// if the path does not exist at startup it will be created by
	// a full clone, otherwise the existing tree is used as is
	Path string `yaml:"path"`

	// UpdateInterval is the time in seconds to wait between sync cycles
	UpdateInterval int `yaml:"update_interval"`

	// SyncTimeout is the total time in seconds allowed for one sync cycle.
	// 0 means no timeout, a slow fetch only delays the next tick
	SyncTimeout int `yaml:"sync_timeout"`

	// Auth config used for the initial clone
	Auth Auth `yaml:"auth"`
}

// Auth represents authentication config of the repository
type Auth struct {
	// username to use for basic or token based authentication
	Username string `yaml:"username"`

	// password or personal access token to use for authentication
	Password string `yaml:"password"`

	// SSH Details
	// path to the ssh key used for the initial clone,
	// defaults to ~/.ssh/id_rsa of the current user
	SSHKeyPath string `yaml:"ssh_key_path"`

	// path to the known hosts of the remote host,
	// if not set host keys are not verified
	SSHKnownHostsPath string `yaml:"ssh_known_hosts_path"`

	// Github APP Details
	// The application id or the client ID of the Github app
	GithubAppID string `yaml:"github_app_id"`
	// The installation id of the app (in the organization).
	GithubAppInstallationID string `yaml:"github_app_installation_id"`
	// path to the github app private key
	GithubAppPrivateKeyPath string `yaml:"github_app_private_key_path"`
}

// Interval returns the wait between sync cycles as a duration
func (c *Config) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// Timeout returns the per cycle timeout as a duration, 0 means unbounded
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.SyncTimeout) * time.Second
}

func (c *Config) validate() error {
	var errs []error

	if c.Remote == "" {
		errs = append(errs, fmt.Errorf("repository git_url cannot be empty"))
	}

	if !filepath.IsAbs(c.Path) {
		errs = append(errs, fmt.Errorf("repository path '%s' must be absolute", c.Path))
	}

	if c.Interval() < MinAllowedInterval {
		errs = append(errs, fmt.Errorf("provided interval between syncs is too short (%s), must be >= %s", c.Interval(), MinAllowedInterval))
	}

	if c.SyncTimeout < 0 {
		errs = append(errs, fmt.Errorf("sync_timeout cannot be negative"))
	}

	// if any of the github app config is set all should be set
	if c.Auth.GithubAppID != "" ||
		c.Auth.GithubAppInstallationID != "" ||
		c.Auth.GithubAppPrivateKeyPath != "" {
		if c.Auth.GithubAppID == "" ||
			c.Auth.GithubAppInstallationID == "" ||
			c.Auth.GithubAppPrivateKeyPath == "" {
			errs = append(errs, fmt.Errorf("all of the Github app attributes are required"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", errs)
	}

	return nil
}
