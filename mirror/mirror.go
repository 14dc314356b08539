package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/utilitywarehouse/index-mirror/giturl"
	"github.com/utilitywarehouse/index-mirror/internal/lock"
)

// branch heads are fetched into remote-tracking refs, the tracking ref of
// the mirror's default branch is the fetched tip used for merge analysis
const headsRefSpec = "+refs/heads/*:refs/remotes/origin/*"

// Outcome is the terminal classification of one sync cycle
type Outcome string

const (
	// OutcomeUpToDate means the local tip already contains the fetched tip,
	// the working tree was not touched
	OutcomeUpToDate Outcome = "up-to-date"
	// OutcomeFastForwarded means the local branch was advanced to the
	// fetched tip and the working tree was reset to match it
	OutcomeFastForwarded Outcome = "fast-forwarded"
	// OutcomeDiverged means neither tip is an ancestor of the other.
	// a true merge would be required which the mirror does not support,
	// nothing was mutated
	OutcomeDiverged Outcome = "diverged"

	// used as metrics label for cycles which returned an error
	outcomeFailed Outcome = "failed"
)

// Repository represents the mirrored working tree of the given remote.
// A Repository is safe for concurrent use by multiple goroutines.
type Repository struct {
	lock          lock.RWMutex  // repository will be locked during sync
	gitURL        *giturl.URL   // parsed remote git URL
	remote        string        // remote repo to mirror
	dir           string        // absolute path of the mirror working tree
	interval      time.Duration // how long to wait between sync cycles
	syncTimeout   time.Duration // the total time allowed for one cycle, 0 means unbounded
	auth          *Auth         // auth information used for the initial clone
	running       bool          // indicates if repository is running the sync loop
	stop, stopped chan bool     // chans to stop sync loop
	log           *slog.Logger
}

// New creates a new mirror repository from the given config.
// The remote is not cloned or synced until Initialize and either
// Sync or StartLoop are called.
func New(conf Config, log *slog.Logger) (*Repository, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	remote := strings.TrimSpace(conf.Remote)
	// filesystem remotes can be case sensitive so only
	// normalise real remote urls
	if !giturl.IsLocalPath(remote) && !giturl.IsFileURL(remote) {
		remote = giturl.NormaliseURL(remote)
	}

	gURL, err := giturl.Parse(remote)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}
	log = log.With("repo", gURL.Repo)

	return &Repository{
		gitURL:      gURL,
		remote:      remote,
		dir:         conf.Path,
		interval:    conf.Interval(),
		syncTimeout: conf.Timeout(),
		auth:        &conf.Auth,
		stop:        make(chan bool),
		stopped:     make(chan bool),
		log:         log,
	}, nil
}

// Remote returns the remote URL of the mirror
func (r *Repository) Remote() string {
	return r.remote
}

// Directory returns the working tree path of the mirror
func (r *Repository) Directory() string {
	return r.dir
}

// Initialize makes sure the mirror directory exists. If the directory is
// missing it is created by a full clone of the remote, using the richer
// credential chain (ssh key, github app, basic auth). An existing directory
// is trusted as is without any content verification.
// A clone failure is fatal for the caller, the mirror must not be served
// from a missing or partial tree.
func (r *Repository) Initialize(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, err := os.Stat(r.dir)
	switch {
	case err == nil:
		r.log.Info("using existing mirror directory", "path", r.dir)
		return nil
	case !os.IsNotExist(err):
		return fmt.Errorf("unable to check mirror dir err:%w", err)
	}

	authMethod, err := r.cloneCredentials().Resolve(ctx, r.gitURL)
	if err != nil {
		return fmt.Errorf("unable to resolve clone credentials err:%w", err)
	}

	r.log.Info("mirror directory does not exist, cloning repository", "remote", r.remote, "path", r.dir)

	if _, err := git.PlainCloneContext(ctx, r.dir, false, &git.CloneOptions{
		URL:  r.remote,
		Auth: authMethod,
	}); err != nil {
		// remove the partial clone so a restart gets a clean attempt
		// instead of trusting a broken directory
		if rmErr := os.RemoveAll(r.dir); rmErr != nil {
			r.log.Error("unable to remove partial clone", "path", r.dir, "err", rmErr)
		}
		return fmt.Errorf("unable to clone repo:%s err:%w", r.gitURL.Repo, err)
	}

	return nil
}

// Sync runs one sync cycle:
//  1. open the mirror and make sure remote "origin" exists
//  2. fetch all branch heads from the remote
//  3. resolve the fetched tip of the mirror's checked out branch
//  4. classify against the local tip and fast-forward if possible
//
// Cycles are independent, any error aborts this cycle only and the next
// tick retries from scratch.
func (r *Repository) Sync(ctx context.Context) (Outcome, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	defer updateSyncLatency(r.gitURL.Repo, time.Now())

	repo, err := git.PlainOpen(r.dir)
	if err != nil {
		return "", fmt.Errorf("unable to open mirror repo:%s path:%s err:%w", r.gitURL.Repo, r.dir, err)
	}

	if err := r.ensureOrigin(repo); err != nil {
		return "", err
	}

	headRef, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("unable to resolve mirror HEAD err:%w", err)
	}
	if !headRef.Name().IsBranch() {
		return "", fmt.Errorf("mirror HEAD is not on a branch ref:%s", headRef.Name())
	}
	branch := headRef.Name().Short()

	// periodic syncs use the transport's default credentials, the richer
	// chain is only used for the initial clone
	authMethod, err := r.syncCredentials().Resolve(ctx, r.gitURL)
	if err != nil {
		return "", fmt.Errorf("unable to resolve sync credentials err:%w", err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		Auth:       authMethod,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(headsRefSpec)},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("unable to fetch repo:%s err:%w", r.gitURL.Repo, err)
	}

	fetchedRef, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch), true)
	if err != nil {
		return "", fmt.Errorf("unable to resolve fetched tip of branch:%s err:%w", branch, err)
	}

	outcome, err := analyse(repo, headRef.Hash(), fetchedRef.Hash())
	if err != nil {
		return "", err
	}

	switch outcome {
	case OutcomeUpToDate:
		r.log.Debug("mirror already up-to-date", "branch", branch, "head", headRef.Hash())
	case OutcomeFastForwarded:
		if err := r.fastForward(repo, headRef.Name(), fetchedRef.Hash()); err != nil {
			return "", err
		}
		r.log.Info("fast-forwarded mirror", "branch", branch, "from", headRef.Hash(), "to", fetchedRef.Hash())
	case OutcomeDiverged:
		r.log.Error("local and remote histories have diverged, merge is not supported, mirror left untouched",
			"branch", branch, "local", headRef.Hash(), "fetched", fetchedRef.Hash())
	}

	return outcome, nil
}

// ensureOrigin makes sure exactly one remote named "origin" exists,
// creating it pointing at the configured remote url if missing
func (r *Repository) ensureOrigin(repo *git.Repository) error {
	_, err := repo.Remote(git.DefaultRemoteName)
	switch {
	case errors.Is(err, git.ErrRemoteNotFound):
		r.log.Info("origin remote missing, creating it", "remote", r.remote)
		if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: git.DefaultRemoteName,
			URLs: []string{r.remote},
		}); err != nil {
			return fmt.Errorf("unable to create origin remote err:%w", err)
		}
	case err != nil:
		return fmt.Errorf("unable to look up origin remote err:%w", err)
	}
	return nil
}

// analyse classifies the relation between the local and the fetched tip
func analyse(repo *git.Repository, local, fetched plumbing.Hash) (Outcome, error) {
	if local == fetched {
		return OutcomeUpToDate, nil
	}

	localCommit, err := repo.CommitObject(local)
	if err != nil {
		return "", fmt.Errorf("unable to read local commit %s err:%w", local, err)
	}
	fetchedCommit, err := repo.CommitObject(fetched)
	if err != nil {
		return "", fmt.Errorf("unable to read fetched commit %s err:%w", fetched, err)
	}

	// fetched tip already part of local history, nothing to do
	behind, err := fetchedCommit.IsAncestor(localCommit)
	if err != nil {
		return "", fmt.Errorf("unable to analyse merge err:%w", err)
	}
	if behind {
		return OutcomeUpToDate, nil
	}

	ahead, err := localCommit.IsAncestor(fetchedCommit)
	if err != nil {
		return "", fmt.Errorf("unable to analyse merge err:%w", err)
	}
	if ahead {
		return OutcomeFastForwarded, nil
	}
	return OutcomeDiverged, nil
}

// fastForward advances the branch ref to the fetched hash, points HEAD at
// the branch and force resets the working tree. The mirror is read-only
// scratch space so any local working tree modification is discarded.
func (r *Repository) fastForward(repo *git.Repository, branchRef plumbing.ReferenceName, fetched plumbing.Hash) error {
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, fetched)); err != nil {
		return fmt.Errorf("unable to advance branch ref:%s err:%w", branchRef, err)
	}

	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return fmt.Errorf("unable to set HEAD to ref:%s err:%w", branchRef, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("unable to open working tree err:%w", err)
	}

	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: fetched}); err != nil {
		return fmt.Errorf("unable to checkout working tree to %s err:%w", fetched, err)
	}

	return nil
}

// StartLoop syncs the repository periodically based on the configured
// interval. The first sync runs immediately. The loop stops when ctx is
// cancelled or StopLoop is called, an in-flight sync is left to finish.
func (r *Repository) StartLoop(ctx context.Context) {
	r.lock.Lock()
	if r.running {
		r.lock.Unlock()
		r.log.Error("sync loop has already been started")
		return
	}
	r.running = true
	r.lock.Unlock()

	r.log.Info("started repository sync loop", "interval", r.interval)

	defer func() {
		r.lock.Lock()
		r.running = false
		r.lock.Unlock()
		close(r.stopped)
	}()

	for {
		sCtx := ctx
		cancel := context.CancelFunc(func() {})
		if r.syncTimeout > 0 {
			sCtx, cancel = context.WithTimeout(ctx, r.syncTimeout)
		}
		outcome, err := r.Sync(sCtx)
		cancel()
		if err != nil {
			r.log.Error("repository sync failed", "err", err)
		}
		recordSync(r.gitURL.Repo, outcome, err == nil)

		t := time.NewTimer(r.interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		}
	}
}

// IsRunning returns if repository sync loop is running or not
func (r *Repository) IsRunning() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.running
}

// StopLoop stops the sync loop and waits until it has acknowledged
func (r *Repository) StopLoop() {
	if !r.IsRunning() {
		return
	}
	close(r.stop)
	<-r.stopped
}

// Stopped returns a chan which is closed once the sync loop has exited.
// Callers can use it for a bounded wait at shutdown.
func (r *Repository) Stopped() <-chan bool {
	return r.stopped
}
