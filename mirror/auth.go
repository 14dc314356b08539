package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/utilitywarehouse/index-mirror/auth"
	"github.com/utilitywarehouse/index-mirror/giturl"
	"github.com/utilitywarehouse/index-mirror/internal/lock"
)

// CredentialProvider resolves the auth method for git network operations
// against the given remote. A nil auth method means the transport's
// default mechanism (anonymous, agent, credential helper).
type CredentialProvider interface {
	Resolve(ctx context.Context, gURL *giturl.URL) (transport.AuthMethod, error)
}

// cloneCredentials returns the provider chain used for the initial clone,
// picked by the remote's scheme and the configured auth
func (r *Repository) cloneCredentials() CredentialProvider {
	switch {
	case r.gitURL.Scheme == "scp" || r.gitURL.Scheme == "ssh":
		return &sshKeyCredentials{
			keyPath:        r.auth.SSHKeyPath,
			knownHostsPath: r.auth.SSHKnownHostsPath,
		}
	case r.gitURL.Scheme == "https" &&
		r.auth.GithubAppInstallationID != "" && r.gitURL.Host == "github.com":
		return &githubAppCredentials{
			appID:          r.auth.GithubAppID,
			installationID: r.auth.GithubAppInstallationID,
			privateKeyPath: r.auth.GithubAppPrivateKeyPath,
		}
	case r.gitURL.Scheme == "https" && r.auth.Password != "":
		return &basicAuthCredentials{
			username: r.auth.Username,
			password: r.auth.Password,
		}
	default:
		return defaultCredentials{}
	}
}

// syncCredentials returns the provider used by periodic syncs. Periodic
// fetches assume an already authorised or anonymous transport, only the
// initial clone walks the richer chain.
func (r *Repository) syncCredentials() CredentialProvider {
	return defaultCredentials{}
}

// defaultCredentials is the transport's default credential mechanism
type defaultCredentials struct{}

func (defaultCredentials) Resolve(ctx context.Context, gURL *giturl.URL) (transport.AuthMethod, error) {
	return nil, nil
}

// sshKeyCredentials authenticates with an ssh key pair, falling back to
// the current user's default key at ~/.ssh/id_rsa when no path is
// configured. The ssh username is taken from the remote url, or "git"
// when the url carries none.
type sshKeyCredentials struct {
	keyPath        string
	knownHostsPath string
}

func (c *sshKeyCredentials) Resolve(ctx context.Context, gURL *giturl.URL) (transport.AuthMethod, error) {
	keyPath, err := c.resolveKeyPath()
	if err != nil {
		return nil, err
	}

	user := gURL.User
	if user == "" {
		user = "git"
	}

	keys, err := gitssh.NewPublicKeysFromFile(user, keyPath, "")
	if err != nil {
		return nil, fmt.Errorf("unable to load ssh key from %s err:%w", keyPath, err)
	}

	if c.knownHostsPath != "" {
		callback, err := gitssh.NewKnownHostsCallback(c.knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load known hosts from %s err:%w", c.knownHostsPath, err)
		}
		keys.HostKeyCallback = callback
	} else {
		// without known hosts there is nothing to verify against
		keys.HostKeyCallback = cryptossh.InsecureIgnoreHostKey()
	}

	return keys, nil
}

func (c *sshKeyCredentials) resolveKeyPath() (string, error) {
	if c.keyPath != "" {
		return c.keyPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine home directory for default ssh key err:%w", err)
	}
	return filepath.Join(home, ".ssh", "id_rsa"), nil
}

// basicAuthCredentials authenticates https remotes with a username and
// password or a bare personal access token
type basicAuthCredentials struct {
	username string
	password string
}

func (c *basicAuthCredentials) Resolve(ctx context.Context, gURL *giturl.URL) (transport.AuthMethod, error) {
	username := c.username
	if username == "" {
		// username is required but ignored for token auth
		username = "-"
	}
	return &githttp.BasicAuth{Username: username, Password: c.password}, nil
}

// githubAppCredentials authenticates github.com https remotes with a
// short lived app installation token, cached until close to its expiry
type githubAppCredentials struct {
	appID          string
	installationID string
	privateKeyPath string

	mu        lock.Mutex
	token     string
	expiresAt time.Time
}

func (c *githubAppCredentials) Resolve(ctx context.Context, gURL *giturl.URL) (transport.AuthMethod, error) {
	token, err := c.installationToken(ctx, gURL)
	if err != nil {
		return nil, fmt.Errorf("unable to get github app token err:%w", err)
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}, nil
}

func (c *githubAppCredentials) installationToken(ctx context.Context, gURL *giturl.URL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// reuse the current token if it is valid for the next 10 min
	if c.expiresAt.After(time.Now().UTC().Add(10 * time.Minute)) {
		return c.token, nil
	}

	// github matches repo name without `.git` for token permissions
	perms := auth.GithubAppTokenReqPermissions{
		Repositories: []string{strings.TrimSuffix(gURL.Repo, ".git")},
		Permissions:  map[string]string{"contents": "read"},
	}

	token, err := auth.GithubAppInstallationToken(ctx, c.appID, c.installationID, c.privateKeyPath, perms)
	if err != nil {
		return "", err
	}

	c.token = token.Token
	c.expiresAt = token.ExpiresAt

	return c.token, nil
}
