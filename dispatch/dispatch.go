/*
	The upload pipeline, end to end: classify the inputs, create the paste
	through the REST API, then (if there's anything heavy) push the heavy
	files into it over git.

	The REST create always comes first and must succeed: its result is the
	paste id, and the heavy path has nothing to clone without one.
*/
package dispatch

import (
	"context"
	"io"
	"strconv"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/classify"
	"github.com/polydawn/gist/heavy"
	"github.com/polydawn/gist/log"
)

// Creator makes a paste from text files.  *gists.Client is one.
type Creator interface {
	Create(ctx context.Context, files map[string]string, public bool, description string) (api.RemoteID, error)
}

// HeavyCommitter pushes files into an existing paste.
type HeavyCommitter interface {
	Commit(ctx context.Context, req heavy.Request) (heavy.Result, error)
}

// HeavyCommitterFunc adapts heavy.Commit with fixed options into a HeavyCommitter.
type HeavyCommitterFunc func(ctx context.Context, req heavy.Request) (heavy.Result, error)

func (f HeavyCommitterFunc) Commit(ctx context.Context, req heavy.Request) (heavy.Result, error) {
	return f(ctx, req)
}

func NewHeavyCommitter(opts heavy.Options) HeavyCommitter {
	return HeavyCommitterFunc(func(ctx context.Context, req heavy.Request) (heavy.Result, error) {
		return heavy.Commit(ctx, req, opts)
	})
}

type Options struct {
	Public      bool
	Description string
	Classify    classify.Options
	Creator     Creator        // required
	Heavy       HeavyCommitter // required if any input turns out heavy
	WebURL      func(api.RemoteID) string
	Monitor     api.Monitor
}

type Outcome struct {
	RemoteID   api.RemoteID
	URL        string
	LightCount int
	HeavyCount int
	Commit     plumbing.Hash // zero if there was no heavy path
}

/*
	Upload the inputs as one paste.

	Nothing is reported as done unless every step succeeded; on error the
	paste may exist with only some content (e.g. the placeholder), and the
	Outcome still carries its id so callers can say so or clean it up.

	Errors are those of classify.Classify, the Creator, and heavy.Commit.
*/
func Upload(ctx context.Context, inputs []string, stdin io.Reader, opts Options) (Outcome, error) {
	plan, err := classify.Classify(ctx, inputs, stdin, opts.Classify)
	if err != nil {
		return Outcome{}, err
	}
	defer plan.Close()

	out := Outcome{
		LightCount: len(plan.Light),
		HeavyCount: len(plan.Heavy),
	}
	if plan.Shape == classify.ShapeEmpty {
		return out, Errorf(api.ErrUsage, "nothing to upload")
	}
	if plan.Shape.HasHeavy() && opts.Heavy == nil {
		return out, Errorf(api.ErrUsage, "%d files need the git path, but it isn't configured", len(plan.Heavy))
	}
	log.Info(opts.Monitor, "uploading "+plan.Shape.String()+" paste",
		[2]string{"light", itoa(out.LightCount)},
		[2]string{"heavy", itoa(out.HeavyCount)},
	)

	files := plan.LightMap()
	if plan.Shape.NeedsPlaceholder() {
		files = map[string]string{api.PlaceholderName: api.PlaceholderContent}
	}
	out.RemoteID, err = opts.Creator.Create(ctx, files, opts.Public, opts.Description)
	if err != nil {
		return out, err
	}
	log.Info(opts.Monitor, "created paste "+out.RemoteID.String(), [2]string{"remoteID", out.RemoteID.String()})

	if plan.Shape.HasHeavy() {
		res, err := opts.Heavy.Commit(ctx, heavy.Request{
			RemoteID: out.RemoteID,
			Files:    plan.Heavy,
			Shape:    plan.Shape,
		})
		if err != nil {
			return out, err
		}
		out.Commit = res.Commit
	}

	if opts.WebURL != nil {
		out.URL = opts.WebURL(out.RemoteID)
	}
	return out, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
