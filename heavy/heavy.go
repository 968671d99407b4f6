/*
	The heavy path: getting files that the REST API won't take into a paste
	by pushing them over git.

	The paste already exists by the time we get here (the REST create call
	made it, with a placeholder file if there were no light files).  We bare-clone
	it, stream each heavy file into the object store, derive a new tree from the
	tip tree, wrap it in a fresh root commit, and force-push that.  The paste's
	previous history is discarded on purpose; nothing about it is worth keeping.
*/
package heavy

import (
	"context"
	"io"
	"os"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/classify"
	"github.com/polydawn/gist/git"
	"github.com/polydawn/gist/log"
	"github.com/polydawn/gist/workspace"
)

type Request struct {
	RemoteID api.RemoteID
	Files    []api.FileEntry
	Shape    classify.Shape
}

type Options struct {
	CloneURL      func(api.RemoteID) string // required
	Credentials   git.CredentialProvider   // required
	WorkspaceRoot string                   // empty means the platform temp dir
	KeepWorkspace bool
	Branch        string // defaults to "master"
	Monitor       api.Monitor
}

type Result struct {
	Commit    plumbing.Hash
	Tree      plumbing.Hash
	Workspace string // only meaningful if the workspace was kept
}

/*
	Commit the request's files to the paste and force-push.

	The work happens on its own goroutine; this one only waits.
	The workspace is removed on every exit path, including panics,
	unless opts.KeepWorkspace is set.

	Cancelling ctx stops the operation up until the push begins;
	once the push has started it runs to completion.

	May return errors of category:

	  - `api.ErrUsage` -- for invalid requests
	  - `api.ErrWorkspace` -- if no workspace could be made
	  - `api.ErrAuth`, `api.ErrClone` -- from opening the clone
	  - `api.ErrIO`, `api.ErrObjectWrite` -- from building the tree
	  - `api.ErrPush` -- from the push
	  - `api.ErrCancelled` -- if ctx was cancelled before the push
*/
func Commit(ctx context.Context, req Request, opts Options) (_ Result, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	if err := validate(req, opts); err != nil {
		return Result{}, err
	}

	ws, err := workspace.Acquire(opts.WorkspaceRoot, "gist", opts.Monitor)
	if err != nil {
		return Result{}, err
	}
	defer ws.Close()
	if opts.KeepWorkspace {
		ws.Leak()
	}

	type outcome struct {
		res   Result
		err   error
		panic interface{}
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if p := recover(); p != nil {
				out.panic = p
			}
			done <- out
		}()
		out.res, out.err = run(ctx, ws, req, opts)
	}()
	out := <-done
	if out.panic != nil {
		// Re-raised here so the deferred cleanup above still runs.
		panic(out.panic)
	}
	if opts.KeepWorkspace {
		out.res.Workspace = ws.Path()
	}
	return out.res, out.err
}

func validate(req Request, opts Options) error {
	if err := req.RemoteID.Validate(); err != nil {
		return err
	}
	if !req.Shape.HasHeavy() {
		return Errorf(api.ErrUsage, "a %s upload has nothing to commit", req.Shape)
	}
	if len(req.Files) == 0 {
		return Errorf(api.ErrUsage, "no files to commit")
	}
	for _, f := range req.Files {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if opts.CloneURL == nil {
		return Errorf(api.ErrUsage, "no clone url scheme configured")
	}
	if opts.Credentials == nil {
		return Errorf(api.ErrAuth, "no credentials configured")
	}
	return nil
}

func run(ctx context.Context, ws *workspace.Workspace, req Request, opts Options) (Result, error) {
	sess, err := git.Open(ctx, git.OpenOptions{
		URL:         opts.CloneURL(req.RemoteID),
		Dir:         ws.Filesystem(),
		Branch:      opts.Branch,
		Credentials: opts.Credentials,
		Monitor:     opts.Monitor,
	})
	if err != nil {
		return Result{}, err
	}
	tree, err := rebuildTree(ctx, sess, req, opts.Monitor)
	if err != nil {
		return Result{}, err
	}
	commit, err := RebuildBranch(ctx, sess, tree, sess.Tip(), git.NewProgressWriter(opts.Monitor, "push"))
	if err != nil {
		return Result{}, err
	}
	return Result{Commit: commit, Tree: tree}, nil
}

/*
	Derive the new tree from the session's tip tree.

	The placeholder is dropped if the shape says one was needed; then every
	file is streamed in and added under its logical name, later files winning
	over earlier ones (and over anything already in the tip tree) on a clash.
*/
func rebuildTree(ctx context.Context, sess *git.Session, req Request, mon api.Monitor) (plumbing.Hash, error) {
	tb := sess.NewTreeBuilder(sess.TipTree())
	if req.Shape.NeedsPlaceholder() {
		tb.Remove(api.PlaceholderName)
	}
	for i, f := range req.Files {
		if ctx.Err() != nil {
			return plumbing.ZeroHash, Errorf(api.ErrCancelled, "cancelled")
		}
		fi, err := os.Stat(f.LocalPath)
		switch {
		case err != nil:
			return plumbing.ZeroHash, Errorf(api.ErrIO, "cannot stat %s: %s", f.LocalPath, err)
		case !fi.Mode().IsRegular():
			return plumbing.ZeroHash, Errorf(api.ErrIO, "%s is not a regular file", f.LocalPath)
		}
		h, err := sess.StreamFile(f.LocalPath, fi.Size())
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if err := tb.Insert(f.LogicalName, h, filemode.Regular); err != nil {
			return plumbing.ZeroHash, err
		}
		log.Progress(mon, "blobs", "streaming files", i+1, len(req.Files))
	}
	return sess.WriteTree(tb)
}

/*
	Replace the branch's history with a single root commit of newTree, and
	force-push it.

	The commit borrows author and committer verbatim from template (normally
	the old tip) so the hosting service keeps attributing the paste the same way;
	its message is empty and it has no parents.

	Cancellation is honored up to the push.  The push itself is not cancellable.
*/
func RebuildBranch(ctx context.Context, sess *git.Session, newTree plumbing.Hash, template *object.Commit, progress io.Writer) (plumbing.Hash, error) {
	if template == nil {
		return plumbing.ZeroHash, Errorf(api.ErrUsage, "no template commit to borrow identity from")
	}
	commit, err := sess.WriteRootCommit(newTree, template.Author, template.Committer, "")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := sess.MoveBranch(commit); err != nil {
		return plumbing.ZeroHash, err
	}
	if ctx.Err() != nil {
		return plumbing.ZeroHash, Errorf(api.ErrCancelled, "cancelled before push of %s", commit)
	}
	if err := sess.Push(context.Background(), progress); err != nil {
		return plumbing.ZeroHash, err
	}
	return commit, nil
}

