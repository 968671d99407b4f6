package api

/*
	This file is all serializable types used in gist
	to name remote pastes and the files that get placed into them.
*/

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/polydawn/refmt/obj/atlas"
	"github.com/warpfork/go-errcat"
)

/*
	RemoteIDs name a paste that already exists on the hosting service.

	They're opaque strings handed back by the REST create call, and they double
	as the repository name in the clone URL (e.g. "git@gist.github.com:<id>.git"),
	so they must be usable as exactly one path segment.
*/
type RemoteID string

func (x RemoteID) String() string {
	return string(x)
}

/*
	Checks that the RemoteID is non-empty and is a single, plain path segment.

	May return errors of category:

	  - `api.ErrUsage` -- for any violation
*/
func (x RemoteID) Validate() error {
	s := string(x)
	switch {
	case s == "":
		return errcat.Errorf(ErrUsage, "remote id must not be empty")
	case s == "." || s == "..":
		return errcat.Errorf(ErrUsage, "remote id %q is not a valid path segment", s)
	case strings.ContainsAny(s, `/\:`):
		return errcat.Errorf(ErrUsage, "remote id %q must not contain separators", s)
	case strings.IndexFunc(s, unicode.IsSpace) >= 0:
		return errcat.Errorf(ErrUsage, "remote id %q must not contain whitespace", s)
	case s[0] == '-':
		return errcat.Errorf(ErrUsage, "remote id %q must not start with '-'", s)
	}
	return nil
}

var RemoteID_AtlasEntry = atlas.BuildEntry(RemoteID("")).Transform().
	TransformMarshal(atlas.MakeMarshalTransformFunc(
		func(x RemoteID) (string, error) {
			return x.String(), nil
		})).
	TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
		func(x string) (RemoteID, error) {
			id := RemoteID(x)
			return id, id.Validate()
		})).
	Complete()

/*
	The placeholder file sent through the REST API when there are no light files,
	because the hosting service refuses to create a paste with zero files.

	It's removed again from the tree when the heavy files get pushed.
*/
const (
	PlaceholderName    = "temp"
	PlaceholderContent = "temp"
)

/*
	The display name used for content read from stdin.
*/
const StdinName = "stdin.txt"

/*
	A FileEntry pairs a local file with the name its content will have
	inside the paste's tree.

	The LogicalName is always a single path component: the tree we build is
	intentionally flat, so a name with separators is rejected rather than
	quietly creating a subdirectory.
*/
type FileEntry struct {
	LocalPath   string
	LogicalName string
}

func (x FileEntry) String() string {
	return fmt.Sprintf("%s (from %s)", x.LogicalName, x.LocalPath)
}

/*
	May return errors of category:

	  - `api.ErrUsage` -- for an empty local path or a logical name that isn't a single path component
*/
func (x FileEntry) Validate() error {
	if x.LocalPath == "" {
		return errcat.Errorf(ErrUsage, "file entry %q has no local path", x.LogicalName)
	}
	return ValidateLogicalName(x.LogicalName)
}

func ValidateLogicalName(name string) error {
	switch {
	case name == "":
		return errcat.Errorf(ErrUsage, "file name must not be empty")
	case name == "." || name == "..":
		return errcat.Errorf(ErrUsage, "file name %q is not a valid path component", name)
	case strings.ContainsAny(name, `/\`):
		return errcat.Errorf(ErrUsage, "file name %q must not contain path separators", name)
	case strings.IndexByte(name, 0) >= 0:
		return errcat.Errorf(ErrUsage, "file name %q must not contain NUL", name)
	}
	return nil
}
