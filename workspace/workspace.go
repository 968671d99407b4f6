/*
	Scoped scratch directories.

	Every heavy upload gets a fresh, uniquely named directory to hold its bare
	clone.  The directory is removed when the Workspace is closed, unless the
	caller asked to keep it around for inspection.
*/
package workspace

import (
	"io/ioutil"
	"os"
	"sync"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/log"
)

type Workspace struct {
	path string
	mon  api.Monitor

	mu     sync.Mutex
	leaked bool
	closed bool
}

/*
	Create a new directory named `<prefix>-*` under root.
	An empty root means the platform temp dir.

	May return errors of category:

	  - `api.ErrWorkspace` -- if the directory can't be created
*/
func Acquire(root string, prefix string, mon api.Monitor) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, Errorf(api.ErrWorkspace, "cannot create workspace root %q: %s", root, err)
		}
	}
	pth, err := ioutil.TempDir(root, prefix+"-")
	if err != nil {
		return nil, Errorf(api.ErrWorkspace, "cannot create workspace: %s", err)
	}
	log.Debug(mon, "created workspace "+pth, [2]string{"path", pth})
	return &Workspace{path: pth, mon: mon}, nil
}

func (ws *Workspace) Path() string {
	return ws.path
}

// Filesystem returns a billy view rooted at the workspace, suitable for git storage.
func (ws *Workspace) Filesystem() billy.Filesystem {
	return osfs.New(ws.path)
}

/*
	Opt out of removal.  Close becomes a no-op apart from logging where the
	directory was left.
*/
func (ws *Workspace) Leak() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.leaked = true
}

/*
	Remove the workspace.  Safe to call more than once.

	Removal failures are reported to the monitor and otherwise swallowed;
	a stray temp dir is not worth failing an upload that already succeeded.
*/
func (ws *Workspace) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return nil
	}
	ws.closed = true
	if ws.leaked {
		log.WorkspaceLeaked(ws.mon, ws.path)
		return nil
	}
	if err := os.RemoveAll(ws.path); err != nil {
		log.CleanupFailed(ws.mon, ws.path, err)
	}
	return nil
}
