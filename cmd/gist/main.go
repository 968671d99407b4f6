package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/config"
	"github.com/polydawn/gist/dispatch"
	"github.com/polydawn/gist/gists"
	"github.com/polydawn/gist/log"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

type baseCLI struct {
	Format    string // Output api format, eg. json
	Verbosity int    // Count of -v flags
	Token     string // API token, overriding the env and ~/.gist
	SaveToken bool   // Persist Token to ~/.gist and exit
	UploadCLI struct {
		Files         []string // Local paths; "-" is stdin
		Public        bool
		Description   string
		KeepWorkspace bool // Leave the heavy-path clone on disk for inspection
	}
	DeleteCLI struct {
		RemoteID string
	}
}

func configureUpload(cli *baseCLI, appUpload *kingpin.CmdClause) {
	appUpload.Arg("file", "Files to upload; '-' or nothing reads stdin").
		StringsVar(&cli.UploadCLI.Files)
	appUpload.Flag("public", "Make the paste public").
		BoolVar(&cli.UploadCLI.Public)
	appUpload.Flag("description", "Description of the paste").
		Short('d').
		StringVar(&cli.UploadCLI.Description)
	appUpload.Flag("keep-workspace", "Keep the temporary clone used for heavy files").
		BoolVar(&cli.UploadCLI.KeepWorkspace)
}

func configureDelete(cli *baseCLI, appDelete *kingpin.CmdClause) {
	appDelete.Arg("id", "Paste ID").
		Required().
		StringVar(&cli.DeleteCLI.RemoteID)
}

/*
	Blocks until a sigint is received, then calls cancel.
	Returns early (without cancelling) if ctx is done first.
*/
func CancelOnInterrupt(ctx context.Context, cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	defer signal.Stop(signalChan)
	select {
	case <-signalChan:
		cancel()
	case <-ctx.Done():
	}
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) api.ExitCode {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go CancelOnInterrupt(ctx, cancel)

	cli := baseCLI{}

	app := kingpin.New("gist", "Upload files to a paste, heavy ones included")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)
	app.Flag("verbose", "More logging; repeat for more").
		Short('v').
		CounterVar(&cli.Verbosity)
	app.Flag("token", "API token (default: $GITHUB_GIST_TOKEN, $GITHUB_TOKEN, or ~/.gist)").
		StringVar(&cli.Token)
	app.Flag("save-token", "Save the --token value to ~/.gist and exit").
		BoolVar(&cli.SaveToken)

	appUpload := app.Command("upload", "upload files as a new paste").Default()
	configureUpload(&cli, appUpload)

	appDelete := app.Command("delete", "delete a paste")
	configureDelete(&cli, appDelete)

	var termErr error
	app.Terminate(func(status int) {
		termErr = fmt.Errorf("parsing error: %d", status)
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return api.ExitUsage
	}
	if termErr != nil {
		// Help was printed.
		return api.ExitUsage
	}

	logger := log.NewLogger(stderr, cli.Verbosity)
	events := make(chan api.Event, 32)
	drained := log.Drain(logger, events)
	mon := api.Monitor{Chan: events}

	var (
		id  api.RemoteID
		url string
	)
	switch {
	case cli.SaveToken:
		err = executeSaveToken(cli)
	case cmd == appUpload.FullCommand():
		var out dispatch.Outcome
		out, err = executeUpload(ctx, cli, stdin, mon)
		id, url = out.RemoteID, out.URL
	case cmd == appDelete.FullCommand():
		id = api.RemoteID(cli.DeleteCLI.RemoteID)
		err = executeDelete(ctx, cli, id)
	}

	close(events)
	<-drained
	if !cli.SaveToken {
		SerializeResult(cli.Format, id, url, err, stdout, stderr)
	} else if err != nil {
		fmt.Fprintln(stderr, err)
	}
	return api.ExitCodeForError(err)
}

func SerializeResult(format string, id api.RemoteID, url string, resultErr error, stdout io.Writer, stderr io.Writer) {
	result := &api.Event_Result{
		RemoteID: id,
		URL:      url,
	}
	result.SetError(resultErr)
	ev := api.Event{Result: result}
	switch format {
	case FmtJson:
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stdout, api.Atlas)
		err := marshaller.Marshal(&ev)
		if err != nil {
			panic(err)
		}
		fmt.Fprintln(stdout)
	case FmtDumb:
		switch {
		case resultErr != nil && id != "":
			fmt.Fprintln(stderr, resultErr)
			fmt.Fprintf(stderr, "paste %s may be incomplete\n", id)
		case resultErr != nil:
			fmt.Fprintln(stderr, resultErr)
		case url != "":
			fmt.Fprintln(stdout, url)
		default:
			fmt.Fprintln(stdout, id)
		}
	default:
		panic(fmt.Errorf("gist: invalid format %s", format))
	}
}

func executeSaveToken(cli baseCLI) error {
	if cli.Token == "" {
		return Errorf(api.ErrUsage, "--save-token needs --token")
	}
	pth, err := config.GetTokenFilePath()
	if err != nil {
		return err
	}
	return gists.SaveToken(pth, cli.Token)
}

func executeUpload(ctx context.Context, cli baseCLI, stdin io.Reader, mon api.Monitor) (dispatch.Outcome, error) {
	client, err := demuxClient(cli)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	committer, err := demuxCommitter(cli, mon)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	webBase := config.GetWebBaseURL()
	return dispatch.Upload(ctx, cli.UploadCLI.Files, stdin, dispatch.Options{
		Public:      cli.UploadCLI.Public,
		Description: cli.UploadCLI.Description,
		Classify:    demuxClassifyOptions(mon),
		Creator:     client,
		Heavy:       committer,
		WebURL:      func(id api.RemoteID) string { return config.WebURL(webBase, id) },
		Monitor:     mon,
	})
}

func executeDelete(ctx context.Context, cli baseCLI, id api.RemoteID) error {
	client, err := demuxClient(cli)
	if err != nil {
		return err
	}
	return client.Delete(ctx, id)
}
