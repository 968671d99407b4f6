/*
	Vocabulary shared by every gist package: remote identifiers, file entries,
	error categories and exit codes, and the monitor events used for progress
	and logging.

	The heuristic for the callable library API is that all information must be
	racked up in the call already.  Config loading (env vars, home dir conventions)
	happens in the caller, and the results are params to the library funcs.
*/
package api

import (
	"time"

	"github.com/warpfork/go-errcat"
)

/*
	Monitoring configuration structs, and message types used.
*/
type (
	/*
		Configuration for what intermediate progress reports a process should send,
		and slot for the channel the caller wishes them to be sent to.
	*/
	Monitor struct {
		// Channel to which events will be sent as the process proceeds.
		// The owner of the channel closes it; functions receiving a Monitor never do.
		// A nil channel will disable all intermediate progress reporting.
		Chan chan<- Event
	}

	/*
		A "union" type of all the kinds of event that may be generated in the
		course of any of the functions.

		The "Result" message is never sent to Monitor.Chan --
		its values are converted into the function returns --
		but *is* seen in the serial form on the CLI output.
	*/
	Event struct {
		Log      *Event_Log      `refmt:"log,omitempty"`
		Progress *Event_Progress `refmt:"prog,omitempty"`
		Result   *Event_Result   `refmt:"result,omitempty"`
	}

	/*
		Freetext log lines with a level and some key-value detail pairs.
	*/
	Event_Log struct {
		Time   time.Time
		Level  LogLevel
		Msg    string
		Detail [][2]string
	}

	/*
		Notifications about progress updates.

		The 'phase' and 'desc' args are freetext;
		'phase' will remain the same for many calls in a row (e.g. "push"), while
		'desc' carries what the remote side said, or which file is being streamed.
		'totalProg' and 'totalWork' are zero when the work isn't countable.
	*/
	Event_Progress struct {
		Phase, Desc          string
		TotalProg, TotalWork int
	}

	Event_Result struct {
		RemoteID RemoteID `refmt:"remoteID,omitempty"`
		URL      string   `refmt:"url,omitempty"`
		Error    *Error   `refmt:"error,omitempty"`
	}

	/*
		The serial form of an errcat error.
	*/
	Error struct {
		Category ErrorCategory     `refmt:"category"`
		Message  string            `refmt:"message"`
		Details  map[string]string `refmt:"details,omitempty"`
	}
)

func (r *Event_Result) SetError(err error) {
	if err == nil {
		r.Error = nil
		return
	}
	category, _ := errcat.Category(err).(ErrorCategory)
	r.Error = &Error{
		Category: category,
		Message:  err.Error(),
	}
	if e, ok := err.(errcat.Error); ok {
		r.Error.Message = e.Message()
		r.Error.Details = e.Details()
	}
}

type LogLevel string

const (
	LogError = LogLevel("error")
	LogWarn  = LogLevel("warn")
	LogInfo  = LogLevel("info")
	LogDebug = LogLevel("debug")
	LogTrace = LogLevel("trace")
)

type ErrorCategory string
type ExitCode int

const (
	ExitSuccess                           = ExitCode(0)
	ExitUsage, ErrUsage                   = ExitCode(1), ErrorCategory("gist-usage-error")        // Some piece of user input to a command was invalid and unrunnable.
	ExitPanic                             = ExitCode(2)                                           // Placeholder.  We don't use this.  '2' happens when golang exits due to panic.
	ExitAuth, ErrAuth                     = ExitCode(3), ErrorCategory("gist-auth-error")         // No usable credential was found, or the remote rejected it.  The user must fix local configuration.
	ExitClone, ErrClone                   = ExitCode(4), ErrorCategory("gist-clone-error")        // The remote repository was unreachable, empty, or missing the branch.
	ExitIO, ErrIO                         = ExitCode(5), ErrorCategory("gist-io-error")           // A local file vanished, shrank, grew, or couldn't be read.
	ExitObjectWrite, ErrObjectWrite       = ExitCode(6), ErrorCategory("gist-object-write-error") // The local object database rejected a write.
	ExitPush, ErrPush                     = ExitCode(7), ErrorCategory("gist-push-error")         // The remote rejected the forced update, or the connection failed mid-push.
	ExitAPI, ErrAPI                       = ExitCode(8), ErrorCategory("gist-api-error")          // The hosting service's REST API refused a request.
	ExitWorkspace, ErrWorkspace           = ExitCode(9), ErrorCategory("gist-workspace-error")    // Scratch space for the clone could not be created.
	ExitCancelled, ErrCancelled           = ExitCode(10), ErrorCategory("gist-cancelled")         // The operation was cancelled before the push began.
	ExitTODO                              = ExitCode(254)                                         // This exit code should be replaced with something more specific
)

/*
	Returns the exit code the CLI should use for the given error.
	Errors with no (or an unknown) category map to ExitTODO.
*/
func ExitCodeForError(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	switch errcat.Category(err) {
	case ErrUsage:
		return ExitUsage
	case ErrAuth:
		return ExitAuth
	case ErrClone:
		return ExitClone
	case ErrIO:
		return ExitIO
	case ErrObjectWrite:
		return ExitObjectWrite
	case ErrPush:
		return ExitPush
	case ErrAPI:
		return ExitAPI
	case ErrWorkspace:
		return ExitWorkspace
	case ErrCancelled:
		return ExitCancelled
	default:
		return ExitTODO
	}
}
