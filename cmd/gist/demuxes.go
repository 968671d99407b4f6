package main

import (
	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/classify"
	"github.com/polydawn/gist/config"
	"github.com/polydawn/gist/dispatch"
	"github.com/polydawn/gist/gists"
	"github.com/polydawn/gist/git"
	"github.com/polydawn/gist/heavy"
)

// An explicit --token wins over every configured source.
func demuxClient(cli baseCLI) (*gists.Client, error) {
	if cli.Token != "" {
		return gists.NewClient(config.GetAPIBaseURL(), cli.Token), nil
	}
	return gists.NewClientFromConfig()
}

func demuxCommitter(cli baseCLI, mon api.Monitor) (dispatch.HeavyCommitter, error) {
	keyPath, err := config.GetSSHKeyPath()
	if err != nil {
		return nil, err
	}
	host := config.GetGitHost()
	return dispatch.NewHeavyCommitter(heavy.Options{
		CloneURL:      func(id api.RemoteID) string { return config.CloneURL(host, id) },
		Credentials:   git.SSHKeyFile{Path: keyPath},
		WorkspaceRoot: config.GetWorkspaceRoot(),
		KeepWorkspace: cli.UploadCLI.KeepWorkspace,
		Monitor:       mon,
	}), nil
}

func demuxClassifyOptions(mon api.Monitor) classify.Options {
	return classify.Options{
		SpoolDir: config.GetWorkspaceRoot(),
		Monitor:  mon,
	}
}
