package liveview

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// tracked view state machine is:
// idle
//
//	-> attached
//	  -> released (terminal)
//
// an offline banner overlays any non-released state while the network is
// offline and the view still intends to be connected.

// TrackedView pairs one open editor view with one session handle. It owns the
// per-view connection intent, the status icon projection, and the offline
// banner lifecycle.
type TrackedView struct {
	view    EditorView
	session Session
	ui      ViewUi
	network NetworkStatus

	stateLock sync.Mutex

	shouldConnect bool
	attached      bool
	released      bool
	iconActive    bool

	removeStatusCallback func()

	offlineBannerActive bool
	offlineBanner       Banner
	removeOnceConnected func()
}

func NewTrackedView(view EditorView, session Session, ui ViewUi, network NetworkStatus) *TrackedView {
	return &TrackedView{
		view:          view,
		session:       session,
		ui:            ui,
		network:       network,
		shouldConnect: true,
	}
}

func (self *TrackedView) View() EditorView {
	return self.view
}

func (self *TrackedView) Session() Session {
	return self.session
}

func (self *TrackedView) ShouldConnect() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.shouldConnect
}

// Is reports whether this tracked view pairs the same editor view with the
// same session handle. Identity, not path equality, so a view stays correctly
// tracked through an editor-side rename when the underlying objects are
// unchanged.
func (self *TrackedView) Is(view EditorView, session Session) bool {
	return self.view.ViewId() == view.ViewId() && self.session == session
}

// Attach is idempotent. It installs the status listener once, synchronizes
// the status icon, and awaits session readiness. A readiness failure is
// treated as an offline condition, never propagated: the offline banner is
// shown instead. If ready and the view intends to be connected, the session
// is connected.
func (self *TrackedView) Attach(ctx context.Context) *TrackedView {
	install := false
	released := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.released {
			released = true
			return
		}
		install = !self.attached
		self.attached = true
	}()
	if released {
		return self
	}

	if install {
		removeStatusCallback := self.session.AddStatusCallback(func(status SessionStatus) {
			self.ui.SetStatusIcon(self.view, status)
		})
		dangling := false
		func() {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			if self.released {
				dangling = true
				return
			}
			self.removeStatusCallback = removeStatusCallback
			self.iconActive = true
		}()
		if dangling {
			removeStatusCallback()
			return self
		}
	}
	self.ui.SetStatusIcon(self.view, self.session.Status())

	if err := self.session.WhenReady(ctx); err != nil {
		glog.V(2).Infof("[view]%s ready err = %s\n", self.view.Path(), err)
		self.ShowOfflineBanner()
		return self
	}

	if self.ShouldConnect() {
		self.session.Connect()
	}
	return self
}

// SetConnected flips the per-view connection intent and drives the session to
// match. The status icon is re-created if missing.
func (self *TrackedView) SetConnected(connect bool) {
	reinstallIcon := false
	released := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.released {
			released = true
			return
		}
		self.shouldConnect = connect
		if self.attached && !self.iconActive {
			self.iconActive = true
			reinstallIcon = true
		}
	}()
	if released {
		return
	}

	if reinstallIcon {
		removeStatusCallback := self.session.AddStatusCallback(func(status SessionStatus) {
			self.ui.SetStatusIcon(self.view, status)
		})
		func() {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			self.removeStatusCallback = removeStatusCallback
		}()
		self.ui.SetStatusIcon(self.view, self.session.Status())
	}

	if connect {
		self.session.Connect()
	} else {
		self.session.Disconnect()
	}
}

func (self *TrackedView) Connect() {
	self.SetConnected(true)
}

func (self *TrackedView) Disconnect() {
	self.SetConnected(false)
}

func (self *TrackedView) ToggleConnection() {
	self.SetConnected(!self.ShouldConnect())
}

// ShowOfflineBanner overlays the offline banner. Shown only while the view
// intends to be connected and the network is offline; at most one banner per
// view. The banner auto-dismisses on the session's next connected event.
// Returns a disposer that is safe to call more than once, including when the
// banner was never shown.
func (self *TrackedView) ShowOfflineBanner() func() {
	show := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.released || self.offlineBannerActive {
			return
		}
		if !self.shouldConnect || self.network.Online() {
			return
		}
		self.offlineBannerActive = true
		show = true
	}()
	if !show {
		return self.dismissOfflineBanner
	}

	glog.V(2).Infof("[view]%s offline banner\n", self.view.Path())
	banner := self.ui.ShowOfflineBanner(self.view)
	removeOnceConnected := self.session.OnceConnected(self.dismissOfflineBanner)

	dangling := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.released || !self.offlineBannerActive {
			// released or already dismissed while the banner was being shown
			dangling = true
			return
		}
		self.offlineBanner = banner
		self.removeOnceConnected = removeOnceConnected
	}()
	if dangling {
		banner.Destroy()
		removeOnceConnected()
	}
	return self.dismissOfflineBanner
}

func (self *TrackedView) dismissOfflineBanner() {
	var banner Banner
	var removeOnceConnected func()
	dismiss := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if !self.offlineBannerActive {
			return
		}
		self.offlineBannerActive = false
		banner = self.offlineBanner
		removeOnceConnected = self.removeOnceConnected
		self.offlineBanner = nil
		self.removeOnceConnected = nil
		dismiss = true
	}()
	if !dismiss {
		return
	}
	if banner != nil {
		banner.Destroy()
	}
	if removeOnceConnected != nil {
		removeOnceConnected()
	}
}

// Release removes the status listener, detaches the icon, dismisses the
// offline banner, and disconnects the session. Terminal. Safe to call even if
// `Attach` never completed.
func (self *TrackedView) Release() {
	var removeStatusCallback func()
	released := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.released {
			released = true
			return
		}
		self.released = true
		removeStatusCallback = self.removeStatusCallback
		self.removeStatusCallback = nil
		self.iconActive = false
	}()
	if released {
		return
	}

	glog.V(2).Infof("[view]%s release\n", self.view.Path())
	self.dismissOfflineBanner()
	if removeStatusCallback != nil {
		removeStatusCallback()
	}
	self.ui.ClearStatusIcon(self.view)
	self.session.Disconnect()
}
