package liveview

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// event wiring between the collaborators and the engine. Reason labels are
// diagnostics only.

func (self *LiveViewManager) wireEvents() {
	unsubs := []func(){
		self.editor.AddViewChangeCallback(func() {
			self.RequestRefresh("view set changed")
		}),
		self.folders.AddMembershipCallback(func(folder Folder) {
			self.RequestRefresh(fmt.Sprintf("folder membership changed: %s", folder.Path()))
		}),
		self.auth.AddUserCallback(self.userChanged),
	}
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.unsubs = append(self.unsubs, unsubs...)
	}()
}

// GoOffline disconnects every tracked view's session and overlays its offline
// banner. Each banner's disposer is registered to fire once on the next
// online transition, so the banner cannot outlive the outage.
func (self *LiveViewManager) GoOffline() {
	trackedViews := self.TrackedViews()
	glog.Infof("[lvm]offline, %d views\n", len(trackedViews))

	for _, trackedView := range trackedViews {
		trackedView.Session().Disconnect()
		dispose := trackedView.ShowOfflineBanner()
		self.network.OnceOnline(dispose)
	}
}

// GoOnline reconnects every in-use folder, refreshes the provider token for
// every tracked session, then re-attaches every tracked view. Attach awaits
// readiness and reconnects the views that still intend to be connected.
func (self *LiveViewManager) GoOnline() {
	trackedViews := self.TrackedViews()
	glog.Infof("[lvm]online, %d views\n", len(trackedViews))

	ctx, cancel := context.WithTimeout(self.ctx, self.settings.RefreshTimeout)
	defer cancel()

	for _, folder := range self.FoldersInUse() {
		folder.Connect()
	}
	for _, trackedView := range trackedViews {
		if _, err := trackedView.Session().ProviderToken(ctx); err != nil {
			glog.V(1).Infof("[lvm]provider token for %s err = %s\n", trackedView.Session().Path(), err)
		}
		trackedView.Attach(ctx)
	}
}

// a user logging in takes down any login banners. The next membership or
// view change runs reconciliation normally.
func (self *LiveViewManager) userChanged(hasUser bool) {
	if !hasUser {
		return
	}
	var banners []Banner
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		for _, banner := range self.loginBanners {
			if banner != nil {
				banners = append(banners, banner)
			}
		}
		self.loginBanners = map[Id]Banner{}
	}()
	for _, banner := range banners {
		banner.Destroy()
	}
}
