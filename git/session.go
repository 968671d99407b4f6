/*
	Direct object-database access to a bare clone of a paste's repository.

	A Session is one clone, opened once and used sequentially: stream blobs in,
	build a tree, write a commit, move the branch, push.  Nothing here ever
	checks out a working tree; every write goes straight into the object store
	of the bare repository held in the session's directory.

	This package requires no git binary on the host.
*/
package git

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4"
	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/cache"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	"gopkg.in/src-d/go-git.v4/storage/filesystem"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/log"
)

const (
	DefaultBranch     = "master"
	DefaultRemoteName = "origin"
)

type OpenOptions struct {
	URL         string             // clone URL; scp-like ssh, ssh://, or a local path
	Dir         billy.Filesystem   // empty directory to hold the bare clone
	Branch      string             // defaults to "master"
	RemoteName  string             // defaults to "origin"
	Credentials CredentialProvider // required
	Monitor     api.Monitor        // optional
}

type Session struct {
	url      string
	endpoint *transport.Endpoint
	branch   string
	remote   string
	creds    CredentialProvider
	mon      api.Monitor

	fs    billy.Filesystem
	store *filesystem.Storage
	repo  *srcd_git.Repository

	tip     *object.Commit
	tipTree *object.Tree
}

/*
	Bare-clone the remote into opts.Dir and resolve the tracked branch.

	May return errors of category:

	  - `api.ErrUsage` -- if the URL is unusable
	  - `api.ErrAuth` -- if no credential could be produced, or the remote refused it
	  - `api.ErrClone` -- if the remote is unreachable or empty, or the branch can't be resolved
	  - `api.ErrCancelled` -- if ctx was cancelled during the clone
*/
func Open(ctx context.Context, opts OpenOptions) (*Session, error) {
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}
	if opts.RemoteName == "" {
		opts.RemoteName = DefaultRemoteName
	}
	if opts.Dir == nil {
		return nil, Errorf(api.ErrUsage, "no directory given for clone")
	}
	if opts.Credentials == nil {
		return nil, Errorf(api.ErrAuth, "no credentials given for %s", opts.URL)
	}
	url, err := SanitizeRemote(opts.URL)
	if err != nil {
		return nil, err
	}
	endpoint, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, Errorf(api.ErrUsage, "failed to create endpoint after sanitization")
	}
	sess := &Session{
		url:      url,
		endpoint: endpoint,
		branch:   opts.Branch,
		remote:   opts.RemoteName,
		creds:    opts.Credentials,
		mon:      opts.Monitor,
		fs:       opts.Dir,
		store:    filesystem.NewStorage(opts.Dir, cache.NewObjectLRUDefault()),
	}
	if err := sess.clone(ctx); err != nil {
		return nil, err
	}
	if err := sess.resolveTip(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Session) clone(ctx context.Context) error {
	auth, err := s.creds.AuthFor(s.endpoint)
	if err != nil {
		return authError(err)
	}
	log.CloneStarted(s.mon, s.url, s.fs.Root())
	// checkout dir is nil for a bare clone
	s.repo, err = srcd_git.CloneContext(ctx, s.store, nil, &srcd_git.CloneOptions{
		URL:               s.url,
		Auth:              auth,
		RemoteName:        s.remote,
		ReferenceName:     plumbing.NewBranchReferenceName(s.branch),
		SingleBranch:      true,
		RecurseSubmodules: srcd_git.NoRecurseSubmodules,
		Progress:          NewProgressWriter(s.mon, "clone"),
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return Errorf(api.ErrCancelled, "cancelled: %s", err)
	case err == transport.ErrAuthenticationRequired, err == transport.ErrAuthorizationFailed:
		return ErrorDetailed(api.ErrAuth, "remote rejected credentials", map[string]string{
			"url":   s.url,
			"cause": err.Error(),
		})
	case err == transport.ErrEmptyRemoteRepository:
		return ErrorDetailed(api.ErrClone, "remote repository is empty", map[string]string{
			"url": s.url,
		})
	default:
		return ErrorDetailed(api.ErrClone, "unable to clone repository", map[string]string{
			"url":   s.url,
			"cause": err.Error(),
		})
	}
}

// Providers are supposed to categorize their own failures; keep them honest.
func authError(err error) error {
	if Category(err) == api.ErrAuth {
		return err
	}
	return Errorf(api.ErrAuth, "cannot load credentials: %s", err)
}

func (s *Session) resolveTip() error {
	refName := plumbing.NewRemoteReferenceName(s.remote, s.branch)
	ref, err := s.repo.Reference(refName, true)
	if err != nil {
		return Errorf(api.ErrClone, "cannot resolve %s: %s", refName, err)
	}
	s.tip, err = s.repo.CommitObject(ref.Hash())
	if err != nil {
		return Errorf(api.ErrClone, "tip of %s is not a readable commit: %s", refName, err)
	}
	s.tipTree, err = s.tip.Tree()
	if err != nil {
		return Errorf(api.ErrClone, "tip commit %s missing tree: %s", s.tip.Hash, err)
	}
	return nil
}

func (s *Session) URL() string                 { return s.url }
func (s *Session) Branch() string              { return s.branch }
func (s *Session) Tip() *object.Commit         { return s.tip }
func (s *Session) TipTree() *object.Tree       { return s.tipTree }
func (s *Session) Storer() *filesystem.Storage { return s.store }

func (s *Session) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(s.branch)
}

/*
	Write a commit with no parents.

	There's deliberately no way to pass parents: the commit this produces
	replaces the branch's history rather than extending it.

	May return errors of category:

	  - `api.ErrObjectWrite` -- if the object store rejects the commit
*/
func (s *Session) WriteRootCommit(tree plumbing.Hash, author, committer object.Signature, message string) (plumbing.Hash, error) {
	commit := &object.Commit{
		Author:    author,
		Committer: committer,
		Message:   message,
		TreeHash:  tree,
	}
	obj := s.store.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot encode commit: %s", err)
	}
	h, err := s.store.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot store commit: %s", err)
	}
	log.CommitWritten(s.mon, h.String(), tree.String())
	return h, nil
}

/*
	Point the local branch at the given commit.

	This is a soft move: only the ref changes.  (There's no worktree to sync.)
*/
func (s *Session) MoveBranch(commit plumbing.Hash) error {
	ref := plumbing.NewHashReference(s.branchRef(), commit)
	if err := s.store.SetReference(ref); err != nil {
		return Errorf(api.ErrObjectWrite, "cannot move %s: %s", s.branchRef(), err)
	}
	log.Debug(s.mon, fmt.Sprintf("moved %s to %s", s.branchRef(), commit),
		[2]string{"ref", s.branchRef().String()},
		[2]string{"commit", commit.String()},
	)
	return nil
}

func (s *Session) refspec() config.RefSpec {
	return config.RefSpec(fmt.Sprintf("+%s:%s", s.branchRef(), s.branchRef()))
}

/*
	Force-push the local branch to the same branch on the remote.

	A remote that already has exactly this commit is a success.
	Server-side progress messages are sent to `progress` if non-nil.

	May return errors of category:

	  - `api.ErrAuth` -- if credentials could not be produced
	  - `api.ErrPush` -- for anything the transport or the remote reports
*/
func (s *Session) Push(ctx context.Context, progress io.Writer) error {
	auth, err := s.creds.AuthFor(s.endpoint)
	if err != nil {
		return authError(err)
	}
	refspec := s.refspec()
	err = s.repo.PushContext(ctx, &srcd_git.PushOptions{
		RemoteName: s.remote,
		RefSpecs:   []config.RefSpec{refspec},
		Auth:       auth,
		Progress:   progress,
	})
	switch err {
	case nil:
		log.PushFinished(s.mon, s.url, refspec.String(), false)
		return nil
	case srcd_git.NoErrAlreadyUpToDate:
		log.PushFinished(s.mon, s.url, refspec.String(), true)
		return nil
	default:
		return ErrorDetailed(api.ErrPush, "push rejected", map[string]string{
			"url":     s.url,
			"refspec": refspec.String(),
			"cause":   err.Error(),
		})
	}
}

/*
	Checks a remote address for sanity and normalizes local paths to absolute.

	The scp-like form ("git@host:path") and ssh:// URLs pass through as-is.
	Local paths (with or without "file://") are absolutized.
	Anything whose host or path would start with '-' is rejected,
	since it could be mistaken for a flag by an ssh command.
*/
func SanitizeRemote(remote string) (string, error) {
	var err error
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", Errorf(api.ErrUsage, "empty git remote")
	}

	endpoint, err := transport.NewEndpoint(remote)
	if err != nil {
		return "", Errorf(api.ErrUsage, "failed to parse URI: %s", err)
	}

	if endpoint.Protocol == "file" {
		if HasFoldedPrefix(remote, "file://") {
			if len(remote) <= 7 {
				return "", Errorf(api.ErrUsage, "empty git remote")
			}
			remote = remote[7:]
		}
		if !filepath.IsAbs(remote) {
			remote, err = filepath.Abs(remote)
			if err != nil {
				return "", Errorf(api.ErrUsage, "failed handling local path")
			}
			return SanitizeRemote(remote)
		}
	}
	pathString := endpoint.Host + endpoint.Path
	if pathString == "" {
		return "", Errorf(api.ErrUsage, "remote has empty path: %s", endpoint.String())
	} else if pathString[0] == '-' {
		return "", Errorf(api.ErrUsage, "remote host cannot start with '-'")
	}
	return remote, nil
}

/*
	Combination of strings.EqualFold and strings.HasPrefix
*/
func HasFoldedPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
