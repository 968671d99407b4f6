package gists

import (
	"strings"

	"github.com/google/renameio"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/gist/api"
)

/*
	Store a token where config.GetToken will find it.

	The file is replaced atomically and is readable only by its owner,
	so a crash mid-write never leaves a truncated token behind.

	May return errors of category:

	  - `api.ErrUsage` -- for an empty token
	  - `api.ErrIO` -- if the file can't be written
*/
func SaveToken(path string, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return Errorf(api.ErrUsage, "refusing to save an empty token")
	}
	if err := renameio.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return Errorf(api.ErrIO, "cannot save token to %s: %s", path, err)
	}
	return nil
}
