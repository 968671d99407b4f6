package git

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"sync"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/log"
)

/*
	ProgressWriter turns the human-readable progress stream a git server sends
	on its sideband into monitor events.

	Servers overwrite lines with '\r' as counters tick, so both '\r' and '\n'
	end a message.  Messages that look like "Phase: 50% (5/10)" become progress
	events; anything else is logged at trace level.
*/
type ProgressWriter struct {
	mon   api.Monitor
	phase string

	mu  sync.Mutex
	buf bytes.Buffer
}

/*
	Returns nil (an untyped nil, so the transport can tell progress is unwanted)
	if the monitor has no channel.
*/
func NewProgressWriter(mon api.Monitor, phase string) io.Writer {
	if mon.Chan == nil {
		return nil
	}
	return &ProgressWriter{mon: mon, phase: phase}
}

var progressPattern = regexp.MustCompile(`^(.*?):\s+\d+% \((\d+)/(\d+)\)`)

func (w *ProgressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		b := w.buf.Bytes()
		i := bytes.IndexAny(b, "\r\n")
		if i < 0 {
			break
		}
		line := string(b[:i])
		w.buf.Next(i + 1)
		w.emit(line)
	}
	return len(p), nil
}

func (w *ProgressWriter) emit(line string) {
	if line == "" {
		return
	}
	if m := progressPattern.FindStringSubmatch(line); m != nil {
		done, _ := strconv.Atoi(m[2])
		total, _ := strconv.Atoi(m[3])
		log.Progress(w.mon, w.phase, m[1], done, total)
		return
	}
	log.Trace(w.mon, "remote: "+line, [2]string{"phase", w.phase})
}
