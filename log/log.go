/*
	Helper functions for emitting structured logs to the api.Monitor.

	Components never write to a logger directly; they send events into the
	monitor channel and whoever owns the channel decides what to do with them
	(the CLI drains them into logrus; tests usually just pass a zero Monitor).
	Using these helpers keeps the common lifecycle messages formatted the same
	way everywhere.  A Monitor with a nil channel swallows everything.
*/
package log

import (
	"fmt"
	"time"

	"github.com/polydawn/gist/api"
)

func emit(mon api.Monitor, lvl api.LogLevel, msg string, detail [][2]string) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:   time.Now(),
			Level:  lvl,
			Msg:    msg,
			Detail: detail,
		},
	}
}

func Info(mon api.Monitor, msg string, detail ...[2]string) {
	emit(mon, api.LogInfo, msg, detail)
}

func Debug(mon api.Monitor, msg string, detail ...[2]string) {
	emit(mon, api.LogDebug, msg, detail)
}

func Trace(mon api.Monitor, msg string, detail ...[2]string) {
	emit(mon, api.LogTrace, msg, detail)
}

func Warn(mon api.Monitor, msg string, detail ...[2]string) {
	emit(mon, api.LogWarn, msg, detail)
}

// Emitted once per input, after its size and content have been inspected.
func Classified(mon api.Monitor, name string, size int64, heavy bool) {
	kind := "light"
	if heavy {
		kind = "heavy"
	}
	emit(mon, api.LogDebug, fmt.Sprintf("classified %q as %s", name, kind), [][2]string{
		{"name", name},
		{"size", fmt.Sprintf("%d", size)},
		{"kind", kind},
	})
}

func CloneStarted(mon api.Monitor, url string, dir string) {
	emit(mon, api.LogInfo, "cloning "+url, [][2]string{
		{"url", url},
		{"dir", dir},
	})
}

func BlobWritten(mon api.Monitor, name string, size int64, hash string) {
	emit(mon, api.LogDebug, fmt.Sprintf("wrote blob for %q", name), [][2]string{
		{"name", name},
		{"size", fmt.Sprintf("%d", size)},
		{"hash", hash},
	})
}

func CommitWritten(mon api.Monitor, commit string, tree string) {
	emit(mon, api.LogInfo, "wrote root commit "+commit, [][2]string{
		{"commit", commit},
		{"tree", tree},
	})
}

func PushFinished(mon api.Monitor, url string, refspec string, upToDate bool) {
	msg := "pushed " + refspec
	if upToDate {
		msg = "remote already up to date for " + refspec
	}
	emit(mon, api.LogInfo, msg, [][2]string{
		{"url", url},
		{"refspec", refspec},
	})
}

// Typically called when removal of a temp dir fails; the failure is not otherwise surfaced.
func CleanupFailed(mon api.Monitor, path string, err error) {
	emit(mon, api.LogWarn, fmt.Sprintf("failed to remove workspace %s: %s", path, err), [][2]string{
		{"path", path},
		{"error", err.Error()},
	})
}

func WorkspaceLeaked(mon api.Monitor, path string) {
	emit(mon, api.LogInfo, "keeping workspace at "+path, [][2]string{
		{"path", path},
	})
}

/*
	Progress reports are sent as their own event kind rather than as logs,
	so the sink can choose to render them differently (or not at all).
*/
func Progress(mon api.Monitor, phase string, desc string, done int, total int) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Progress: &api.Event_Progress{
			Phase:     phase,
			Desc:      desc,
			TotalProg: done,
			TotalWork: total,
		},
	}
}
