package git

import (
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/format/objfile"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/log"
)

const streamChunkSize = 8 * 1024

/*
	Stream a local file into the object store as a loose blob.

	The blob header is written with declaredSize before any content, so the
	file is never held in memory; it's copied through in small chunks.
	If the file turns out to be shorter or longer than declared (it changed
	since it was stat'd), nothing is stored and the whole thing is an error.

	May return errors of category:

	  - `api.ErrIO` -- if the file is missing or unreadable, or its size doesn't match declaredSize
	  - `api.ErrObjectWrite` -- if the object store can't be written
*/
func (s *Session) StreamFile(localPath string, declaredSize int64) (_ plumbing.Hash, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	src, err := os.Open(localPath)
	if err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrIO, "cannot open %s: %s", localPath, err)
	}
	defer src.Close()

	tmp, err := s.fs.TempFile(path.Join("objects", "pack"), "tmp_obj_")
	if err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot open object writer: %s", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			s.fs.Remove(tmp.Name())
		}
	}()

	ow := objfile.NewWriter(tmp)
	if err := ow.WriteHeader(plumbing.BlobObject, declaredSize); err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot write blob header: %s", err)
	}
	n, err := copyChunked(ow, src)
	switch {
	case err == objfile.ErrOverflow:
		return plumbing.ZeroHash, ErrorDetailed(api.ErrIO, fmt.Sprintf("%s grew while streaming", localPath), map[string]string{
			"path":     localPath,
			"declared": strconv.FormatInt(declaredSize, 10),
		})
	case err != nil:
		return plumbing.ZeroHash, err
	case n != declaredSize:
		return plumbing.ZeroHash, ErrorDetailed(api.ErrIO, fmt.Sprintf("%s shrank while streaming", localPath), map[string]string{
			"path":     localPath,
			"declared": strconv.FormatInt(declaredSize, 10),
			"actual":   strconv.FormatInt(n, 10),
		})
	}
	if err := ow.Close(); err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot finish blob: %s", err)
	}
	if err := tmp.Close(); err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot finish blob: %s", err)
	}
	committed = true
	hash := ow.Hash()
	hex := hash.String()
	if err := s.fs.Rename(tmp.Name(), path.Join("objects", hex[0:2], hex[2:])); err != nil {
		s.fs.Remove(tmp.Name())
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot store blob %s: %s", hex, err)
	}
	log.BlobWritten(s.mon, localPath, declaredSize, hex)
	return hash, nil
}

// Like io.Copy, but keeps read failures and write failures apart.
// Overflow from the object writer is passed through uncategorized.
func copyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, streamChunkSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			switch {
			case werr == objfile.ErrOverflow:
				return total, werr
			case werr != nil:
				return total, Errorf(api.ErrObjectWrite, "failed writing blob: %s", werr)
			}
		}
		switch {
		case rerr == io.EOF:
			return total, nil
		case rerr != nil:
			return total, Errorf(api.ErrIO, "failed reading file: %s", rerr)
		}
	}
}
