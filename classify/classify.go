/*
	Deciding which inputs can go through the REST API and which have to be
	pushed over git.

	A file is "light" if it's at most 10 MiB, not empty, and valid UTF-8;
	the API accepts those as text.  Everything else is "heavy".
*/
package classify

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"unicode/utf8"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sync/errgroup"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/log"
)

const (
	DefaultThreshold   = 10 * 1024 * 1024
	DefaultConcurrency = 32

	// The input naming standard input.
	StdinInput = "-"
)

type Options struct {
	Threshold   int64  // max size of a light file; defaults to DefaultThreshold
	Concurrency int    // max files inspected at once; defaults to DefaultConcurrency
	SpoolDir    string // where stdin is buffered; defaults to the platform temp dir
	Monitor     api.Monitor
}

type LightFile struct {
	Name    string
	Content string
}

/*
	Plan is the result of classification.  Both lists are in input order.

	Close the Plan once the upload is finished; it may hold a spool file of
	stdin content, which heavy entries point at.
*/
type Plan struct {
	Light []LightFile
	Heavy []api.FileEntry
	Shape Shape

	spool string
}

func (p *Plan) Close() error {
	if p.spool == "" {
		return nil
	}
	err := os.Remove(p.spool)
	p.spool = ""
	if err != nil && !os.IsNotExist(err) {
		return Errorf(api.ErrIO, "cannot remove stdin spool: %s", err)
	}
	return nil
}

// LightMap returns the light files keyed by name, as the REST API wants them.
func (p *Plan) LightMap() map[string]string {
	m := make(map[string]string, len(p.Light))
	for _, f := range p.Light {
		m[f.Name] = f.Content
	}
	return m
}

type verdict struct {
	heavy   bool
	size    int64
	entry   api.FileEntry
	content string
}

/*
	Classify every input.  No inputs means stdin.

	Inputs are inspected concurrently (at most opts.Concurrency at a time)
	but the Plan lists them in input order regardless of which finished first.

	May return errors of category:

	  - `api.ErrUsage` -- for directories, stdin given twice, or two light files with the same name
	  - `api.ErrIO` -- if an input can't be read
	  - `api.ErrCancelled` -- if ctx is cancelled
*/
func Classify(ctx context.Context, inputs []string, stdin io.Reader, opts Options) (_ *Plan, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if len(inputs) == 0 {
		inputs = []string{StdinInput}
	}

	plan := &Plan{}
	defer func() {
		if err != nil {
			plan.Close()
		}
	}()
	// Stdin is spooled up front: it can only be read once, and a heavy
	// stdin has to be streamed into git from a real file later.
	entries := make([]api.FileEntry, len(inputs))
	for i, in := range inputs {
		if in != StdinInput {
			entries[i] = api.FileEntry{LocalPath: in, LogicalName: filepath.Base(in)}
			continue
		}
		if plan.spool != "" {
			return nil, Errorf(api.ErrUsage, "stdin can only be given once")
		}
		if isTerminal(stdin) {
			log.Info(opts.Monitor, "reading from stdin; end input with ctrl-d")
		}
		plan.spool, err = spool(stdin, opts.SpoolDir)
		if err != nil {
			return nil, err
		}
		entries[i] = api.FileEntry{LocalPath: plan.spool, LogicalName: api.StdinName}
	}

	verdicts := make([]verdict, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range entries {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return Errorf(api.ErrCancelled, "cancelled")
			}
			v, err := classifyOne(entries[i], opts.Threshold)
			if err != nil {
				return err
			}
			log.Classified(opts.Monitor, v.entry.LogicalName, v.size, v.heavy)
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, Errorf(api.ErrCancelled, "cancelled")
	}

	lightNames := map[string]string{}
	for _, v := range verdicts {
		if v.heavy {
			plan.Heavy = append(plan.Heavy, v.entry)
			continue
		}
		if prev, ok := lightNames[v.entry.LogicalName]; ok {
			return nil, ErrorDetailed(api.ErrUsage, "two files would both be named "+v.entry.LogicalName, map[string]string{
				"first":  prev,
				"second": v.entry.LocalPath,
			})
		}
		lightNames[v.entry.LogicalName] = v.entry.LocalPath
		plan.Light = append(plan.Light, LightFile{v.entry.LogicalName, v.content})
	}
	plan.Shape = ShapeOf(len(plan.Light), len(plan.Heavy))
	return plan, nil
}

func classifyOne(entry api.FileEntry, threshold int64) (verdict, error) {
	if err := entry.Validate(); err != nil {
		return verdict{}, err
	}
	fi, err := os.Stat(entry.LocalPath)
	switch {
	case os.IsNotExist(err):
		return verdict{}, Errorf(api.ErrIO, "%s does not exist", entry.LocalPath)
	case err != nil:
		return verdict{}, Errorf(api.ErrIO, "cannot stat %s: %s", entry.LocalPath, err)
	case fi.IsDir():
		return verdict{}, Errorf(api.ErrUsage, "%s is a directory", entry.LocalPath)
	}
	// Oversized files are never read here; they're streamed later.
	if fi.Size() > threshold || fi.Size() == 0 {
		return verdict{heavy: true, size: fi.Size(), entry: entry}, nil
	}
	body, err := ioutil.ReadFile(entry.LocalPath)
	if err != nil {
		return verdict{}, Errorf(api.ErrIO, "cannot read %s: %s", entry.LocalPath, err)
	}
	if len(body) == 0 || int64(len(body)) > threshold || !utf8.Valid(body) {
		return verdict{heavy: true, size: int64(len(body)), entry: entry}, nil
	}
	return verdict{size: int64(len(body)), entry: entry, content: string(body)}, nil
}

func spool(r io.Reader, dir string) (string, error) {
	if r == nil {
		return "", Errorf(api.ErrUsage, "stdin requested but none available")
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", Errorf(api.ErrIO, "cannot create spool dir %s: %s", dir, err)
		}
	}
	f, err := ioutil.TempFile(dir, "gist-stdin-*")
	if err != nil {
		return "", Errorf(api.ErrIO, "cannot buffer stdin: %s", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", Errorf(api.ErrIO, "cannot buffer stdin: %s", err)
	}
	return f.Name(), nil
}
