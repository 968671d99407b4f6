package dispatch

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/classify"
	"github.com/polydawn/gist/git"
	"github.com/polydawn/gist/heavy"
	"github.com/polydawn/gist/testutil"
)

// fakeService behaves like the hosting service: a create makes a new
// repository holding exactly the files sent.
type fakeService struct {
	dir     string
	calls   []map[string]string
	remotes map[api.RemoteID]*testutil.Remote
	fail    error
}

func (s *fakeService) Create(ctx context.Context, files map[string]string, public bool, description string) (api.RemoteID, error) {
	s.calls = append(s.calls, files)
	if s.fail != nil {
		return "", s.fail
	}
	id := api.RemoteID("paste" + string(rune('a'+len(s.calls)-1)))
	s.remotes[id] = testutil.NewRemote(s.cloneURL(id), files)
	return id, nil
}

func (s *fakeService) cloneURL(id api.RemoteID) string {
	return filepath.Join(s.dir, id.String()+".git")
}

func TestUpload(t *testing.T) {
	testutil.UseInProcessTransport()
	ctx := context.Background()
	Convey("Uploading", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			svc := &fakeService{dir: filepath.Join(tmpDir, "remotes"), remotes: map[api.RemoteID]*testutil.Remote{}}
			heavyCalls := 0
			committer := NewHeavyCommitter(heavy.Options{
				CloneURL:      svc.cloneURL,
				Credentials:   git.SSHKeyBytes(testutil.TestKeyPEM()),
				WorkspaceRoot: filepath.Join(tmpDir, "ws"),
			})
			opts := Options{
				Classify: classify.Options{Threshold: 1024, SpoolDir: tmpDir},
				Creator:  svc,
				Heavy: HeavyCommitterFunc(func(ctx context.Context, req heavy.Request) (heavy.Result, error) {
					heavyCalls++
					return committer.Commit(ctx, req)
				}),
				WebURL: func(id api.RemoteID) string { return "https://paste.example/" + id.String() },
			}
			txt := testutil.ShouldWriteFile(filepath.Join(tmpDir, "in", "a.txt"), "hello\n")
			big := testutil.ShouldWriteRandomFile(filepath.Join(tmpDir, "in", "big.bin"), 4096, 1)

			Convey("light files only go through the REST call", func() {
				out, err := Upload(ctx, []string{txt}, nil, opts)
				So(err, ShouldBeNil)
				So(svc.calls, ShouldHaveLength, 1)
				So(svc.calls[0], ShouldResemble, map[string]string{"a.txt": "hello\n"})
				So(heavyCalls, ShouldEqual, 0)
				So(out.RemoteID, ShouldEqual, api.RemoteID("pastea"))
				So(out.URL, ShouldEqual, "https://paste.example/pastea")
				So(out.LightCount, ShouldEqual, 1)
				So(out.HeavyCount, ShouldEqual, 0)
				So(out.Commit.IsZero(), ShouldBeTrue)
			})
			Convey("heavy files only send the placeholder, then replace it", func() {
				out, err := Upload(ctx, []string{big}, nil, opts)
				So(err, ShouldBeNil)
				So(svc.calls[0], ShouldResemble, map[string]string{api.PlaceholderName: api.PlaceholderContent})
				So(heavyCalls, ShouldEqual, 1)
				remote := svc.remotes[out.RemoteID]
				So(remote.TipNames(), ShouldResemble, []string{"big.bin"})
				So(remote.Tip().Hash, ShouldEqual, out.Commit)
				So(remote.Tip().NumParents(), ShouldEqual, 0)
				So(out.HeavyCount, ShouldEqual, 1)
			})
			Convey("mixed files keep the light ones next to the heavy ones", func() {
				out, err := Upload(ctx, []string{txt, big}, nil, opts)
				So(err, ShouldBeNil)
				So(svc.calls[0], ShouldResemble, map[string]string{"a.txt": "hello\n"})
				remote := svc.remotes[out.RemoteID]
				So(remote.TipNames(), ShouldResemble, []string{"a.txt", "big.bin"})
				So(remote.ReadFile("a.txt"), ShouldEqual, "hello\n")
				So(out.LightCount, ShouldEqual, 1)
				So(out.HeavyCount, ShouldEqual, 1)
			})
			Convey("stdin is uploaded as a light file", func() {
				out, err := Upload(ctx, nil, strings.NewReader("piped\n"), opts)
				So(err, ShouldBeNil)
				So(svc.calls[0], ShouldResemble, map[string]string{api.StdinName: "piped\n"})
				So(out.LightCount, ShouldEqual, 1)
			})
			Convey("a create failure stops before any heavy work", func() {
				svc.fail = errcat.Errorf(api.ErrAPI, "Validation Failed")
				out, err := Upload(ctx, []string{big}, nil, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrAPI)
				So(heavyCalls, ShouldEqual, 0)
				So(out.URL, ShouldEqual, "")
			})
			Convey("a heavy failure reports the paste id but no url", func() {
				opts.Heavy = HeavyCommitterFunc(func(ctx context.Context, req heavy.Request) (heavy.Result, error) {
					return heavy.Result{}, errcat.Errorf(api.ErrPush, "rejected")
				})
				out, err := Upload(ctx, []string{big}, nil, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrPush)
				So(out.RemoteID, ShouldEqual, api.RemoteID("pastea"))
				So(out.URL, ShouldEqual, "")
			})
			Convey("heavy files without a committer are refused before creating anything", func() {
				opts.Heavy = nil
				_, err := Upload(ctx, []string{big}, nil, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrUsage)
				So(svc.calls, ShouldBeEmpty)
			})
			Convey("classification errors are refused before creating anything", func() {
				_, err := Upload(ctx, []string{filepath.Join(tmpDir, "nope")}, nil, opts)
				So(err, errcat.ErrorShouldHaveCategory, api.ErrIO)
				So(svc.calls, ShouldBeEmpty)
			})
			Convey("log events are emitted on the monitor", func() {
				ch := make(chan api.Event, 64)
				opts.Monitor = api.Monitor{Chan: ch}
				_, err := Upload(ctx, []string{txt}, nil, opts)
				So(err, ShouldBeNil)
				close(ch)
				var msgs bytes.Buffer
				for ev := range ch {
					if ev.Log != nil {
						msgs.WriteString(ev.Log.Msg + "\n")
					}
				}
				So(msgs.String(), ShouldContainSubstring, "created paste pastea")
			})
		})
	})
}
