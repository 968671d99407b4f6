package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"
	"sort"
	"sync"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"gopkg.in/src-d/go-billy.v4/osfs"
	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/client"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/server"
)

var installTransport sync.Once

/*
	Serve local paths with go-git's own server implementation, in process,
	instead of shelling out to git-upload-pack and git-receive-pack.
	Tests that clone or push to a Remote must call this first.
*/
func UseInProcessTransport() {
	installTransport.Do(func() {
		client.InstallProtocol("file", server.DefaultServer)
	})
}

/*
	Answer ssh URLs (e.g. "git@host:abc.git") from bare repositories under dir,
	in process.  The host part is ignored and the path is taken relative to dir.
	Credentials are accepted but never checked.

	This replaces the ssh transport for the whole test binary;
	call the returned func to put the previous one back.
*/
func ServeSSHFrom(dir string) (restore func()) {
	prev := client.Protocols["ssh"]
	client.InstallProtocol("ssh", server.NewServer(server.NewFilesystemLoader(osfs.New(dir))))
	return func() { client.InstallProtocol("ssh", prev) }
}

// The identity used on commits made by NewRemote.
var RemoteSignature = object.Signature{
	Name:  "Paste Owner",
	Email: "owner@example.com",
	When:  time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
}

/*
	A bare repository on local disk standing in for a hosted paste.
*/
type Remote struct {
	Path string
}

/*
	Create a bare repository at pth whose master branch has one commit
	containing the given files.  This mimics a freshly created paste.
*/
func NewRemote(pth string, files map[string]string) *Remote {
	_, err := srcd_git.PlainInit(pth, true)
	convey.So(err, convey.ShouldBeNil)
	r := &Remote{pth}
	r.commit(files, nil)
	return r
}

/*
	Opens the repository fresh on every call: a storage instance caches its
	view of the pack files, and pushes add new ones behind its back.
*/
func (r *Remote) open() *srcd_git.Repository {
	repo, err := srcd_git.PlainOpen(r.Path)
	convey.So(err, convey.ShouldBeNil)
	return repo
}

func (r *Remote) commit(files map[string]string, parents []plumbing.Hash) plumbing.Hash {
	store := r.open().Storer
	var entries []object.TreeEntry
	for name, content := range files {
		blob := store.NewEncodedObject()
		blob.SetType(plumbing.BlobObject)
		w, err := blob.Writer()
		convey.So(err, convey.ShouldBeNil)
		_, err = w.Write([]byte(content))
		convey.So(err, convey.ShouldBeNil)
		convey.So(w.Close(), convey.ShouldBeNil)
		h, err := store.SetEncodedObject(blob)
		convey.So(err, convey.ShouldBeNil)
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: h})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	treeObj := store.NewEncodedObject()
	convey.So((&object.Tree{Entries: entries}).Encode(treeObj), convey.ShouldBeNil)
	treeHash, err := store.SetEncodedObject(treeObj)
	convey.So(err, convey.ShouldBeNil)

	commitObj := store.NewEncodedObject()
	convey.So((&object.Commit{
		Author:       RemoteSignature,
		Committer:    RemoteSignature,
		Message:      "",
		TreeHash:     treeHash,
		ParentHashes: parents,
	}).Encode(commitObj), convey.ShouldBeNil)
	commitHash, err := store.SetEncodedObject(commitObj)
	convey.So(err, convey.ShouldBeNil)
	convey.So(store.SetReference(plumbing.NewHashReference(plumbing.Master, commitHash)), convey.ShouldBeNil)
	return commitHash
}

/*
	Add a commit on top of the current tip, as if someone else pushed in the meantime.
*/
func (r *Remote) AdvanceWith(files map[string]string) plumbing.Hash {
	return r.commit(files, []plumbing.Hash{r.Tip().Hash})
}

func (r *Remote) Tip() *object.Commit {
	repo := r.open()
	ref, err := repo.Reference(plumbing.Master, true)
	convey.So(err, convey.ShouldBeNil)
	commit, err := repo.CommitObject(ref.Hash())
	convey.So(err, convey.ShouldBeNil)
	return commit
}

func (r *Remote) TipTree() *object.Tree {
	tree, err := r.Tip().Tree()
	convey.So(err, convey.ShouldBeNil)
	return tree
}

// Names of the entries in the tip tree, in tree order.
func (r *Remote) TipNames() []string {
	var names []string
	for _, e := range r.TipTree().Entries {
		names = append(names, e.Name)
	}
	return names
}

func (r *Remote) ReadFile(name string) string {
	f, err := r.TipTree().File(name)
	convey.So(err, convey.ShouldBeNil)
	content, err := f.Contents()
	convey.So(err, convey.ShouldBeNil)
	return content
}

func (r *Remote) Contains(hash plumbing.Hash) bool {
	_, err := r.open().Storer.EncodedObject(plumbing.AnyObject, hash)
	return err == nil
}

var (
	keyOnce sync.Once
	keyPEM  []byte
)

/*
	Returns an unencrypted PEM private key, generated once per test binary.
	The in-process transport doesn't check it, but it must parse.
*/
func TestKeyPEM() []byte {
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		keyPEM = pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(k),
		})
	})
	return keyPEM
}

// Writes TestKeyPEM to pth.  Returns the path.
func ShouldWriteTestKey(pth string) string {
	convey.So(ioutil.WriteFile(pth, TestKeyPEM(), 0600), convey.ShouldBeNil)
	return pth
}
