package liveview

// each editor view must have a unique stable id
// This solves an issue where some host views can be implemented with zero state.
// Zero state views make it ambiguous whether the view pointer can be used as a key.
// see https://github.com/golang/go/issues/65878
type EditorView interface {
	ViewId() Id

	// the file path shown in the view. May change on an editor-side rename
	// while the view identity stays the same.
	Path() string
}

// ViewExtension is one entry of the capability extension bundle: the editing
// behaviors (remote cursors, live edits) the host installs for one tracked
// session. The bundle is swapped whole on every reconciliation commit, no
// partial updates.
type ViewExtension struct {
	View    EditorView
	Session Session
}

type Editor interface {
	// the currently open document views, in host order
	OpenViews() []EditorView

	// install or replace the capability extension bundle. An empty bundle
	// removes all live editing behaviors.
	RefreshExtensions(extensions []*ViewExtension)

	// fires when the set of open views changes. returns an unsubscribe func.
	AddViewChangeCallback(viewChangeCallback func()) func()
}
