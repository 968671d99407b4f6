package git

import (
	"sort"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"

	"github.com/polydawn/gist/api"
)

/*
	TreeBuilder accumulates the entries of one flat tree.

	It's seeded with a copy of a base tree's entries; edits never touch the
	base tree object itself.  Subtrees in the base are carried over as opaque
	entries (by hash), exactly as they were.
*/
type TreeBuilder struct {
	entries []object.TreeEntry
}

func (s *Session) NewTreeBuilder(base *object.Tree) *TreeBuilder {
	return NewTreeBuilder(base)
}

func NewTreeBuilder(base *object.Tree) *TreeBuilder {
	tb := &TreeBuilder{}
	if base != nil {
		tb.entries = make([]object.TreeEntry, len(base.Entries))
		copy(tb.entries, base.Entries)
	}
	return tb
}

func (tb *TreeBuilder) find(name string) int {
	for i := range tb.entries {
		if tb.entries[i].Name == name {
			return i
		}
	}
	return -1
}

// Get returns the entry with the given name, if any.
func (tb *TreeBuilder) Get(name string) (object.TreeEntry, bool) {
	if i := tb.find(name); i >= 0 {
		return tb.entries[i], true
	}
	return object.TreeEntry{}, false
}

// Remove drops the named entry.  Removing a name that isn't there is not an error.
func (tb *TreeBuilder) Remove(name string) {
	if i := tb.find(name); i >= 0 {
		tb.entries = append(tb.entries[:i], tb.entries[i+1:]...)
	}
}

/*
	Insert sets the named entry, replacing any entry that already has that name.

	May return errors of category:

	  - `api.ErrUsage` -- if name is not a single path component
*/
func (tb *TreeBuilder) Insert(name string, hash plumbing.Hash, mode filemode.FileMode) error {
	if err := api.ValidateLogicalName(name); err != nil {
		return err
	}
	te := object.TreeEntry{Name: name, Mode: mode, Hash: hash}
	if i := tb.find(name); i >= 0 {
		tb.entries[i] = te
		return nil
	}
	tb.entries = append(tb.entries, te)
	return nil
}

func (tb *TreeBuilder) Len() int {
	return len(tb.entries)
}

// Git sorts tree entries as though directories have '/' appended to them.
func entrySortKey(e *object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

/*
	Write the builder's entries as a tree object, in git's canonical order.
	An empty builder writes the empty tree.

	May return errors of category:

	  - `api.ErrObjectWrite` -- if the object store rejects the tree
*/
func (s *Session) WriteTree(tb *TreeBuilder) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, len(tb.entries))
	copy(entries, tb.entries)
	sort.Slice(entries, func(i, j int) bool {
		return entrySortKey(&entries[i]) < entrySortKey(&entries[j])
	})
	tree := &object.Tree{Entries: entries}
	eo := s.store.NewEncodedObject()
	if err := tree.Encode(eo); err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot encode tree: %s", err)
	}
	h, err := s.store.SetEncodedObject(eo)
	if err != nil {
		return plumbing.ZeroHash, Errorf(api.ErrObjectWrite, "cannot store tree: %s", err)
	}
	return h, nil
}
