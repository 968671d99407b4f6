package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/testutil"
)

func TestWorkspace(t *testing.T) {
	Convey("Workspaces", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			Convey("are created under the root with the prefix", func() {
				ws, err := Acquire(tmpDir, "gist", api.Monitor{})
				So(err, ShouldBeNil)
				So(filepath.Dir(ws.Path()), ShouldEqual, tmpDir)
				So(strings.HasPrefix(filepath.Base(ws.Path()), "gist-"), ShouldBeTrue)

				Convey("the billy view writes into the directory", func() {
					f, err := ws.Filesystem().Create("HEAD")
					So(err, ShouldBeNil)
					So(f.Close(), ShouldBeNil)
					_, err = os.Stat(filepath.Join(ws.Path(), "HEAD"))
					So(err, ShouldBeNil)
				})
				Convey("closing removes everything, and closing again is fine", func() {
					So(os.MkdirAll(filepath.Join(ws.Path(), "objects", "ab"), 0755), ShouldBeNil)
					So(ws.Close(), ShouldBeNil)
					_, err := os.Stat(ws.Path())
					So(os.IsNotExist(err), ShouldBeTrue)
					So(ws.Close(), ShouldBeNil)
				})
				Convey("leaked workspaces survive close and say where they are", func() {
					ch := make(chan api.Event, 1)
					ws.mon = api.Monitor{Chan: ch}
					ws.Leak()
					So(ws.Close(), ShouldBeNil)
					_, err := os.Stat(ws.Path())
					So(err, ShouldBeNil)
					ev := <-ch
					So(ev.Log.Msg, ShouldContainSubstring, ws.Path())
				})
			})
			Convey("two workspaces never share a directory", func() {
				a, err := Acquire(tmpDir, "gist", api.Monitor{})
				So(err, ShouldBeNil)
				b, err := Acquire(tmpDir, "gist", api.Monitor{})
				So(err, ShouldBeNil)
				So(a.Path(), ShouldNotEqual, b.Path())
			})
			Convey("an unusable root is a workspace error", func() {
				blocker := filepath.Join(tmpDir, "file")
				So(os.WriteFile(blocker, []byte("x"), 0644), ShouldBeNil)
				_, err := Acquire(filepath.Join(blocker, "sub"), "gist", api.Monitor{})
				So(err, errcat.ErrorShouldHaveCategory, api.ErrWorkspace)
			})
		})
	})
}
