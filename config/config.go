/*
	Helpers for loading contextual config.

	Config for gist means "things that are the host machine operator's concerns":
	where credentials live, which hosts to talk to, and where scratch space goes.
	These are read from the environment and home directory conventions,
	as opposed to being parameters for function calls; the CLI reads them once
	and passes the results down.
*/
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/gist/api"
)

/*
	Return the path of the private key used for SSH pushes.

	The default value is `"~/.ssh/id_rsa"`;
	this can be overriden by the `GIST_SSH_KEY` environment variable.
	The key must not have a passphrase.
*/
func GetSSHKeyPath() (string, error) {
	if pth := os.Getenv("GIST_SSH_KEY"); pth != "" {
		pth, err := filepath.Abs(pth)
		if err != nil {
			panic(err)
		}
		return pth, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", Errorf(api.ErrAuth, "cannot locate home directory for ssh key: %s", err)
	}
	return filepath.Join(home, ".ssh", "id_rsa"), nil
}

/*
	Return the host that serves the git side of pastes.

	The default value is `"gist.github.com"`;
	this can be overriden by the `GIST_GIT_HOST` environment variable.
*/
func GetGitHost() string {
	return envDefault("GIST_GIT_HOST", "gist.github.com")
}

/*
	Return the clone URL for a paste, `git@<host>:<id>.git`.
*/
func CloneURL(host string, id api.RemoteID) string {
	return "git@" + host + ":" + id.String() + ".git"
}

/*
	Return the base URL of the REST API.

	The default value is `"https://api.github.com"`;
	this can be overriden by the `GIST_API_URL` environment variable.
*/
func GetAPIBaseURL() string {
	return strings.TrimRight(envDefault("GIST_API_URL", "https://api.github.com"), "/")
}

/*
	Return the base URL under which pastes are viewable in a browser.

	The default value is `"https://gist.github.com"`;
	this can be overriden by the `GIST_WEB_URL` environment variable.
*/
func GetWebBaseURL() string {
	return strings.TrimRight(envDefault("GIST_WEB_URL", "https://gist.github.com"), "/")
}

func WebURL(base string, id api.RemoteID) string {
	return base + "/" + id.String()
}

/*
	Return the directory under which temporary workspaces are created.

	The default value is the platform temp root;
	this can be overriden by the `GIST_TMPDIR` environment variable.
*/
func GetWorkspaceRoot() string {
	pth := os.Getenv("GIST_TMPDIR")
	if pth == "" {
		return os.TempDir()
	}
	pth, err := filepath.Abs(pth)
	if err != nil {
		panic(err)
	}
	return pth
}

/*
	Return the path of the file the API token may be stored in, `"~/.gist"`.
*/
func GetTokenFilePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", Errorf(api.ErrAuth, "cannot locate home directory for token file: %s", err)
	}
	return filepath.Join(home, ".gist"), nil
}

/*
	Return the API token.

	Sources are checked in order: the `GITHUB_GIST_TOKEN` environment variable,
	the `GITHUB_TOKEN` environment variable, then the `~/.gist` file.
	Surrounding whitespace is trimmed from whatever is found.

	May return errors of category:

	  - `api.ErrAuth` -- if no source has a token
	  - `api.ErrIO` -- if the token file exists but can't be read
*/
func GetToken() (string, error) {
	for _, key := range []string{"GITHUB_GIST_TOKEN", "GITHUB_TOKEN"} {
		if tok := strings.TrimSpace(os.Getenv(key)); tok != "" {
			return tok, nil
		}
	}
	pth, err := GetTokenFilePath()
	if err != nil {
		return "", err
	}
	body, err := ioutil.ReadFile(pth)
	switch {
	case os.IsNotExist(err):
		return "", Errorf(api.ErrAuth, "GITHUB_GIST_TOKEN, GITHUB_TOKEN, or %s don't exist", pth)
	case err != nil:
		return "", Errorf(api.ErrIO, "cannot read token file %s: %s", pth, err)
	}
	tok := strings.TrimSpace(string(body))
	if tok == "" {
		return "", Errorf(api.ErrAuth, "token file %s is empty", pth)
	}
	return tok, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
