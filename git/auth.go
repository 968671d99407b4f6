package git

import (
	"io/ioutil"
	"os"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/crypto/ssh"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	srcd_ssh "gopkg.in/src-d/go-git.v4/plumbing/transport/ssh"

	"github.com/polydawn/gist/api"
)

// The ssh user used when the remote URL doesn't name one.
const defaultSSHUser = "git"

/*
	A CredentialProvider produces the auth method for one transport operation.

	It's asked once per clone and once per push, and must give the same answer
	each time it's asked for the same endpoint.  The user to authenticate as is
	taken from the endpoint (e.g. the "git" in "git@host:path").

	May return errors of category:

	  - `api.ErrAuth` -- if no usable credential could be produced
*/
type CredentialProvider interface {
	AuthFor(ep *transport.Endpoint) (transport.AuthMethod, error)
}

/*
	SSHKeyFile authenticates with an unencrypted private key on disk.

	The file is re-read on every call, so a key that's rotated between the
	clone and the push is picked up (and a key that vanished is reported).
*/
type SSHKeyFile struct {
	Path string
}

func (k SSHKeyFile) AuthFor(ep *transport.Endpoint) (transport.AuthMethod, error) {
	pem, err := ioutil.ReadFile(k.Path)
	switch {
	case os.IsNotExist(err):
		return nil, ErrorDetailed(api.ErrAuth, "ssh key not found", map[string]string{
			"path": k.Path,
		})
	case err != nil:
		return nil, ErrorDetailed(api.ErrAuth, "ssh key unreadable", map[string]string{
			"path":  k.Path,
			"cause": err.Error(),
		})
	}
	auth, err := SSHKeyBytes(pem).AuthFor(ep)
	if err != nil {
		return nil, ErrorDetailed(api.ErrAuth, err.Error(), map[string]string{
			"path": k.Path,
		})
	}
	return auth, nil
}

/*
	SSHKeyBytes authenticates with an unencrypted PEM private key held in memory.
*/
type SSHKeyBytes []byte

func (k SSHKeyBytes) AuthFor(ep *transport.Endpoint) (transport.AuthMethod, error) {
	// Parse it ourselves first: the error is more specific than what the transport reports.
	if _, err := ssh.ParsePrivateKey(k); err != nil {
		return nil, Errorf(api.ErrAuth, "unusable ssh key (keys with a passphrase are not supported): %s", err)
	}
	user := defaultSSHUser
	if ep != nil && ep.User != "" {
		user = ep.User
	}
	auth, err := srcd_ssh.NewPublicKeys(user, k, "")
	if err != nil {
		return nil, Errorf(api.ErrAuth, "unusable ssh key: %s", err)
	}
	return auth, nil
}
