package heavy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stevegt/readercomp"
	"github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/classify"
	"github.com/polydawn/gist/git"
	"github.com/polydawn/gist/testutil"
)

func TestCommit(t *testing.T) {
	testutil.UseInProcessTransport()
	ctx := context.Background()
	Convey("Committing heavy files", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			remotes := filepath.Join(tmpDir, "remotes")
			wsRoot := filepath.Join(tmpDir, "ws")
			opts := Options{
				CloneURL:      func(id api.RemoteID) string { return filepath.Join(remotes, id.String()+".git") },
				Credentials:   git.SSHKeyBytes(testutil.TestKeyPEM()),
				WorkspaceRoot: wsRoot,
			}
			big := testutil.ShouldWriteRandomFile(filepath.Join(tmpDir, "in", "big.bin"), 256*1024, 1)
			workspacesLeft := func() []string {
				left, _ := filepath.Glob(filepath.Join(wsRoot, "gist-*"))
				return left
			}

			Convey("into a heavy-only paste", func() {
				remote := testutil.NewRemote(filepath.Join(remotes, "abc123.git"), map[string]string{"temp": "temp"})
				oldTip := remote.Tip()
				res, err := Commit(ctx, Request{
					RemoteID: "abc123",
					Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}},
					Shape:    classify.ShapeHeavyOnly,
				}, opts)
				So(err, ShouldBeNil)

				Convey("the placeholder is gone and the file is there", func() {
					So(remote.TipNames(), ShouldResemble, []string{"big.bin"})
					So(remote.Tip().Hash, ShouldEqual, res.Commit)
					So(remote.TipTree().Hash, ShouldEqual, res.Tree)

					f, err := remote.TipTree().File("big.bin")
					So(err, ShouldBeNil)
					rd, err := f.Reader()
					So(err, ShouldBeNil)
					defer rd.Close()
					local, err := os.Open(big)
					So(err, ShouldBeNil)
					defer local.Close()
					same, err := readercomp.Equal(rd, local, 4096)
					So(err, ShouldBeNil)
					So(same, ShouldBeTrue)
				})
				Convey("the commit is a root commit borrowing the old identity", func() {
					tip := remote.Tip()
					So(tip.NumParents(), ShouldEqual, 0)
					So(tip.Message, ShouldEqual, "")
					So(tip.Author.Name, ShouldEqual, oldTip.Author.Name)
					So(tip.Author.Email, ShouldEqual, oldTip.Author.Email)
					So(tip.Author.When.Unix(), ShouldEqual, oldTip.Author.When.Unix())
					So(tip.Committer.Email, ShouldEqual, oldTip.Committer.Email)
				})
				Convey("the workspace is cleaned up", func() {
					So(workspacesLeft(), ShouldBeEmpty)
				})
				Convey("a second push replaces history again", func() {
					other := testutil.ShouldWriteRandomFile(filepath.Join(tmpDir, "in", "other.bin"), 1000, 2)
					res2, err := Commit(ctx, Request{
						RemoteID: "abc123",
						Files:    []api.FileEntry{{LocalPath: other, LogicalName: "other.bin"}},
						Shape:    classify.ShapeHeavyOnly,
					}, opts)
					So(err, ShouldBeNil)
					tip := remote.Tip()
					So(tip.Hash, ShouldEqual, res2.Commit)
					So(tip.NumParents(), ShouldEqual, 0)
					So(tip.Hash, ShouldNotEqual, res.Commit)
					// Deliberately a union: the tree is seeded from the previous tip
					// tree, so files from the first push survive the second.
					So(remote.TipNames(), ShouldResemble, []string{"big.bin", "other.bin"})
				})
			})
			Convey("into a mixed paste", func() {
				remote := testutil.NewRemote(filepath.Join(remotes, "mixed1.git"), map[string]string{"a.txt": "hello"})
				_, err := Commit(ctx, Request{
					RemoteID: "mixed1",
					Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}},
					Shape:    classify.ShapeMixed,
				}, opts)
				So(err, ShouldBeNil)
				So(remote.TipNames(), ShouldResemble, []string{"a.txt", "big.bin"})
				So(remote.ReadFile("a.txt"), ShouldEqual, "hello")
			})
			Convey("a mixed paste that happens to have a file named temp keeps it", func() {
				remote := testutil.NewRemote(filepath.Join(remotes, "mixed2.git"), map[string]string{"temp": "real content"})
				_, err := Commit(ctx, Request{
					RemoteID: "mixed2",
					Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}},
					Shape:    classify.ShapeMixed,
				}, opts)
				So(err, ShouldBeNil)
				So(remote.TipNames(), ShouldResemble, []string{"big.bin", "temp"})
			})
			Convey("heavy files named like the placeholder replace it", func() {
				remote := testutil.NewRemote(filepath.Join(remotes, "clash.git"), map[string]string{"temp": "temp"})
				_, err := Commit(ctx, Request{
					RemoteID: "clash",
					Files:    []api.FileEntry{{LocalPath: big, LogicalName: "temp"}},
					Shape:    classify.ShapeHeavyOnly,
				}, opts)
				So(err, ShouldBeNil)
				So(remote.TipNames(), ShouldResemble, []string{"temp"})
				So(remote.ReadFile("temp"), ShouldNotEqual, "temp")
			})
			Convey("with duplicate names, the last file wins", func() {
				remote := testutil.NewRemote(filepath.Join(remotes, "dupes.git"), map[string]string{"temp": "temp"})
				second := testutil.ShouldWriteFile(filepath.Join(tmpDir, "in2", "big.bin"), "\xff second")
				_, err := Commit(ctx, Request{
					RemoteID: "dupes",
					Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}, {LocalPath: second, LogicalName: "big.bin"}},
					Shape:    classify.ShapeHeavyOnly,
				}, opts)
				So(err, ShouldBeNil)
				So(remote.TipNames(), ShouldResemble, []string{"big.bin"})
				So(remote.ReadFile("big.bin"), ShouldEqual, "\xff second")
			})
			Convey("failures leave the remote untouched", func() {
				remote := testutil.NewRemote(filepath.Join(remotes, "abc123.git"), map[string]string{"temp": "temp"})
				oldTip := remote.Tip().Hash

				Convey("a vanished file is an io error", func() {
					_, err := Commit(ctx, Request{
						RemoteID: "abc123",
						Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}, {LocalPath: filepath.Join(tmpDir, "gone.bin"), LogicalName: "gone.bin"}},
						Shape:    classify.ShapeHeavyOnly,
					}, opts)
					So(err, errcat.ErrorShouldHaveCategory, api.ErrIO)
					So(remote.Tip().Hash, ShouldEqual, oldTip)
					So(workspacesLeft(), ShouldBeEmpty)
				})
				Convey("an unknown paste is a clone error", func() {
					_, err := Commit(ctx, Request{
						RemoteID: "nosuch",
						Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}},
						Shape:    classify.ShapeHeavyOnly,
					}, opts)
					So(err, errcat.ErrorShouldHaveCategory, api.ErrClone)
					So(workspacesLeft(), ShouldBeEmpty)
				})
				Convey("a cancelled context is reported as such", func() {
					cctx, cancel := context.WithCancel(ctx)
					cancel()
					_, err := Commit(cctx, Request{
						RemoteID: "abc123",
						Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}},
						Shape:    classify.ShapeHeavyOnly,
					}, opts)
					So(err, errcat.ErrorShouldHaveCategory, api.ErrCancelled)
					So(remote.Tip().Hash, ShouldEqual, oldTip)
				})
				Convey("a bad key is an auth error", func() {
					opts.Credentials = git.SSHKeyFile{Path: filepath.Join(tmpDir, "missing_key")}
					_, err := Commit(ctx, Request{
						RemoteID: "abc123",
						Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}},
						Shape:    classify.ShapeHeavyOnly,
					}, opts)
					So(err, errcat.ErrorShouldHaveCategory, api.ErrAuth)
				})
			})
			Convey("a kept workspace survives and is reported", func() {
				testutil.NewRemote(filepath.Join(remotes, "keep.git"), map[string]string{"temp": "temp"})
				opts.KeepWorkspace = true
				res, err := Commit(ctx, Request{
					RemoteID: "keep",
					Files:    []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}},
					Shape:    classify.ShapeHeavyOnly,
				}, opts)
				So(err, ShouldBeNil)
				So(res.Workspace, ShouldNotEqual, "")
				_, err = os.Stat(filepath.Join(res.Workspace, "HEAD"))
				So(err, ShouldBeNil)
			})
			Convey("invalid requests are refused before any work", func() {
				_, err := Commit(ctx, Request{RemoteID: "a/b", Files: []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}}, Shape: classify.ShapeHeavyOnly}, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrUsage)
				_, err = Commit(ctx, Request{RemoteID: "abc", Files: []api.FileEntry{{LocalPath: big, LogicalName: "dir/big.bin"}}, Shape: classify.ShapeHeavyOnly}, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrUsage)
				_, err = Commit(ctx, Request{RemoteID: "abc", Files: []api.FileEntry{{LocalPath: big, LogicalName: "big.bin"}}, Shape: classify.ShapeLightOnly}, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrUsage)
				_, err = Commit(ctx, Request{RemoteID: "abc", Shape: classify.ShapeHeavyOnly}, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrUsage)
				_, err = os.Stat(wsRoot)
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})
	})
}

func TestRebuildBranch(t *testing.T) {
	testutil.UseInProcessTransport()
	Convey("RebuildBranch needs a template commit", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			remote := testutil.NewRemote(filepath.Join(tmpDir, "remote.git"), map[string]string{"temp": "temp"})
			ws := filepath.Join(tmpDir, "clone")
			So(os.MkdirAll(ws, 0755), ShouldBeNil)
			sess, err := git.Open(context.Background(), git.OpenOptions{
				URL:         remote.Path,
				Dir:         osfs.New(ws),
				Credentials: git.SSHKeyBytes(testutil.TestKeyPEM()),
			})
			So(err, ShouldBeNil)
			_, err = RebuildBranch(context.Background(), sess, sess.TipTree().Hash, nil, nil)
			So(err, errcat.ErrorShouldHaveCategory, api.ErrUsage)

			Convey("and with one, rewrites the same tree as a fresh root", func() {
				commit, err := RebuildBranch(context.Background(), sess, sess.TipTree().Hash, sess.Tip(), nil)
				So(err, ShouldBeNil)
				So(remote.Tip().Hash, ShouldEqual, commit)
				So(remote.TipNames(), ShouldResemble, []string{"temp"})
			})
		})
	})
}
