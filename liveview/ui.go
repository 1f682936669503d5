package liveview

type Banner interface {
	// safe to call more than once
	Destroy()
}

// ViewUi is the host's per-view ui surface. The engine and the tracked views
// only project state into it and never read it back.
type ViewUi interface {
	SetStatusIcon(view EditorView, status SessionStatus)
	ClearStatusIcon(view EditorView)

	ShowOfflineBanner(view EditorView) Banner

	// `login` starts the host login flow when the user interacts with the banner
	ShowLoginBanner(view EditorView, login func()) Banner
}

type AuthMonitor interface {
	HasUser() bool
	Login()

	// fires when the login state changes. returns an unsubscribe func.
	AddUserCallback(userCallback func(hasUser bool)) func()
}

type NetworkMonitor interface {
	Online() bool

	// ask the monitor to re-probe reachability
	CheckStatus()

	// one shot. fires on the next offline -> online transition.
	// returns an unsubscribe func.
	OnceOnline(onlineCallback func()) func()
}

// NetworkStatus is the read-only capability handed to tracked views instead
// of a manager back-pointer, to keep the view's dependency surface minimal.
type NetworkStatus interface {
	Online() bool
}
