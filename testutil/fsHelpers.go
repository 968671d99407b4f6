package testutil

import (
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/smartystreets/goconvey/convey"
)

/*
	Run fn with a fresh temp dir, removing it afterwards.

	Use it inside a Convey block; each leaf the block runs gets its own dir.
*/
func WithTmpdir(fn func(tmpDir string)) {
	tmpBase := os.Getenv("GIST_TEST_TMPDIR")
	tmpDir, err := ioutil.TempDir(tmpBase, "gist-test-")
	if err != nil {
		panic(err)
	}
	tmpDir, err = filepath.EvalSymlinks(tmpDir)
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)
	fn(tmpDir)
}

// Write a file (and its parents), asserting success.  Returns the path.
func ShouldWriteFile(pth string, content string) string {
	convey.So(os.MkdirAll(filepath.Dir(pth), 0755), convey.ShouldBeNil)
	convey.So(ioutil.WriteFile(pth, []byte(content), 0644), convey.ShouldBeNil)
	return pth
}

/*
	Write size bytes of deterministic pseudo-random content.
	The first byte is always 0xff, so the content is never valid UTF-8.
*/
func ShouldWriteRandomFile(pth string, size int64, seed int64) string {
	convey.So(os.MkdirAll(filepath.Dir(pth), 0755), convey.ShouldBeNil)
	f, err := os.Create(pth)
	convey.So(err, convey.ShouldBeNil)
	defer f.Close()
	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, 32*1024)
	for remaining := size; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		rng.Read(buf[:n])
		if remaining == size {
			buf[0] = 0xff
		}
		_, err := f.Write(buf[:n])
		convey.So(err, convey.ShouldBeNil)
		remaining -= n
	}
	return pth
}
