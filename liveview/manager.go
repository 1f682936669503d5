package liveview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/golang/glog"
)

type LiveViewManagerSettings struct {
	// budget for one reconciliation attempt. On timeout the attempt is
	// abandoned and the single flight marker is cleared, so a stuck session
	// cannot wedge the editor.
	RefreshTimeout time.Duration
}

func DefaultLiveViewManagerSettings() *LiveViewManagerSettings {
	return &LiveViewManagerSettings{
		RefreshTimeout: 3000 * time.Millisecond,
	}
}

// LiveViewManager reconciles the host editor's open views with the live
// session handles for them. It computes the desired view set, diffs it
// against the tracked set by identity, drives release/ready/attach, and
// swaps the capability extension bundle on every commit.
//
// invariants:
//   - the extension bundle is non empty iff the tracked set is non empty
//   - at most one reconciliation attempt executes at a time
//   - every tracked view holds a live, non released session handle
type LiveViewManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	editor  Editor
	folders FolderProvider
	auth    AuthMonitor
	network NetworkMonitor
	ui      ViewUi

	settings *LiveViewManagerSettings

	stateLock sync.Mutex

	// order significant. Compared whole against freshly computed sets.
	trackedViews []*TrackedView
	extensions   []*ViewExtension

	// single flight marker plus the coalesced reasons of requests that
	// arrived while an attempt was running. Not a queue: any number of
	// concurrent requests collapses into exactly one follow-up run.
	refreshActive  bool
	pendingReasons []string

	// at most one login banner per view while logged out
	loginBanners map[Id]Banner

	unsubs []func()
}

func NewLiveViewManagerWithDefaults(
	ctx context.Context,
	editor Editor,
	folders FolderProvider,
	auth AuthMonitor,
	network NetworkMonitor,
	ui ViewUi,
) *LiveViewManager {
	return NewLiveViewManager(ctx, editor, folders, auth, network, ui, DefaultLiveViewManagerSettings())
}

func NewLiveViewManager(
	ctx context.Context,
	editor Editor,
	folders FolderProvider,
	auth AuthMonitor,
	network NetworkMonitor,
	ui ViewUi,
	settings *LiveViewManagerSettings,
) *LiveViewManager {
	cancelCtx, cancel := context.WithCancel(ctx)
	manager := &LiveViewManager{
		ctx:          cancelCtx,
		cancel:       cancel,
		editor:       editor,
		folders:      folders,
		auth:         auth,
		network:      network,
		ui:           ui,
		settings:     settings,
		loginBanners: map[Id]Banner{},
	}
	manager.wireEvents()
	return manager
}

// RequestRefresh asks the manager to reconcile. `reason` is a diagnostic
// label only, never used for correctness. Returns whether a new attempt was
// started. `false` means the request was coalesced into the follow-up run of
// the attempt already in flight - coalesced, not dropped.
func (self *LiveViewManager) RequestRefresh(reason string) bool {
	start := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.refreshActive {
			self.pendingReasons = append(self.pendingReasons, reason)
			return
		}
		self.refreshActive = true
		start = true
	}()
	if !start {
		glog.V(1).Infof("[lvm]refresh coalesced (%s)\n", reason)
		return false
	}
	go HandleError(func() {
		self.refreshLoop(reason)
	}, self.clearRefreshActive)
	return true
}

func (self *LiveViewManager) refreshLoop(reason string) {
	for {
		if glog.V(2) {
			TraceWithReturn(fmt.Sprintf("[lvm]refresh (%s)", reason), func() bool {
				return self.attemptWithTimeout(reason)
			})
		} else {
			self.attemptWithTimeout(reason)
		}

		var pendingReasons []string
		func() {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			if len(self.pendingReasons) == 0 {
				self.refreshActive = false
				return
			}
			pendingReasons = self.pendingReasons
			self.pendingReasons = nil
		}()
		if pendingReasons == nil {
			return
		}
		// exactly one follow-up run for everything that coalesced
		reason = strings.Join(pendingReasons, ", ")
	}
}

func (self *LiveViewManager) clearRefreshActive() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.refreshActive = false
	self.pendingReasons = nil
}

func (self *LiveViewManager) attemptWithTimeout(reason string) bool {
	attemptCtx, attemptCancel := context.WithTimeout(self.ctx, self.settings.RefreshTimeout)
	defer attemptCancel()

	result := make(chan bool, 1)
	go HandleError(func() {
		result <- self.runAttempt(attemptCtx, reason)
	}, func() {
		result <- false
	})

	select {
	case ok := <-result:
		return ok
	case <-attemptCtx.Done():
		// abandon the attempt and discard its eventual result. Side effects
		// already issued to folder and session collaborators are not rolled
		// back; the collaborators are idempotent and safe to leave mid flight.
		glog.Infof("[lvm]refresh abandoned (%s)\n", reason)
		return false
	}
}

func (self *LiveViewManager) runAttempt(ctx context.Context, reason string) bool {
	glog.V(1).Infof("[lvm]refresh (%s)\n", reason)

	foldersInUse := self.FoldersInUse()
	trackedViews := self.TrackedViews()

	if len(foldersInUse) == 0 && len(trackedViews) == 0 {
		// nothing to track and nothing tracked
		self.repairExtensions()
		return true
	}

	if !self.auth.HasUser() {
		// refusal, not failure. Nothing is tracked or released while logged
		// out; each eligible view gets a login banner.
		self.showLoginBanners(self.computeDesiredSet())
		return false
	}

	for _, folder := range foldersInUse {
		folder.Connect()
	}

	desiredViews := self.computeDesiredSet()

	matching, newlyDesired, stale := diffTrackedViews(trackedViews, desiredViews)
	nextViews := make([]*TrackedView, 0, len(matching)+len(newlyDesired))
	nextViews = append(nextViews, matching...)
	nextViews = append(nextViews, newlyDesired...)

	if len(stale) == 0 && orderAndContentEqual(nextViews, trackedViews) {
		// fast path: the open set did not actually change. Skip release and
		// readiness, which cost network round trips, and just re-attach to
		// refresh icons and listeners. Attach is idempotent.
		glog.V(1).Infof("[lvm]refresh fast path, %d views\n", len(nextViews))
		for _, trackedView := range nextViews {
			trackedView.Attach(ctx)
		}
		return true
	}

	for _, trackedView := range stale {
		trackedView.Release()
	}
	for _, trackedView := range nextViews {
		if err := trackedView.Session().WhenReady(ctx); err != nil {
			// surfaces as an offline banner in attach below
			glog.V(1).Infof("[lvm]%s ready err = %s\n", trackedView.Session().Path(), err)
		}
	}
	for _, trackedView := range nextViews {
		trackedView.Attach(ctx)
	}

	self.commit(nextViews)
	return true
}

// the desired set: one tracked view for every open editor view whose path
// resolves to a shared folder. Views whose folder lookup or session
// construction fails are skipped for this attempt, never fatal - a rename mid
// flight leaves the path transiently invalid.
func (self *LiveViewManager) computeDesiredSet() []*TrackedView {
	desiredViews := []*TrackedView{}
	for _, view := range self.editor.OpenViews() {
		folder := self.folders.Lookup(view.Path())
		if folder == nil {
			continue
		}
		session, err := folder.GetFile(view.Path(), true)
		if err != nil {
			glog.Warningf("[lvm]session for %s err = %s\n", view.Path(), err)
			continue
		}
		desiredViews = append(desiredViews, NewTrackedView(view, session, self.ui, self))
	}
	return desiredViews
}

// the distinct folders referenced by currently open views, independent of
// whether session construction succeeds
func (self *LiveViewManager) FoldersInUse() []Folder {
	folders := []Folder{}
	seen := map[Folder]bool{}
	for _, view := range self.editor.OpenViews() {
		folder := self.folders.Lookup(view.Path())
		if folder == nil || seen[folder] {
			continue
		}
		seen[folder] = true
		folders = append(folders, folder)
	}
	return folders
}

// partition the desired set against the tracked set by tracked view identity.
// `matching` are the previously tracked objects in their previous relative
// order, `newlyDesired` the fresh objects in desired order, `stale` the
// previously tracked objects absent from the desired set.
func diffTrackedViews(trackedViews []*TrackedView, desiredViews []*TrackedView) (matching []*TrackedView, newlyDesired []*TrackedView, stale []*TrackedView) {
	desiredMatched := make([]bool, len(desiredViews))
	for _, trackedView := range trackedViews {
		found := false
		for i, desiredView := range desiredViews {
			if !desiredMatched[i] && trackedView.Is(desiredView.View(), desiredView.Session()) {
				desiredMatched[i] = true
				found = true
				break
			}
		}
		if found {
			matching = append(matching, trackedView)
		} else {
			stale = append(stale, trackedView)
		}
	}
	for i, desiredView := range desiredViews {
		if !desiredMatched[i] {
			newlyDesired = append(newlyDesired, desiredView)
		}
	}
	return
}

// order and content equality over `(view path, session path)` pairs. A
// re-check before skipping the release and readiness work, since `matching`
// carries the previously tracked objects.
func orderAndContentEqual(a []*TrackedView, b []*TrackedView) bool {
	return slices.EqualFunc(a, b, func(x *TrackedView, y *TrackedView) bool {
		return x.View().Path() == y.View().Path() &&
			x.Session().Path() == y.Session().Path()
	})
}

func (self *LiveViewManager) commit(nextViews []*TrackedView) {
	extensions := make([]*ViewExtension, 0, len(nextViews))
	for _, trackedView := range nextViews {
		extensions = append(extensions, &ViewExtension{
			View:    trackedView.View(),
			Session: trackedView.Session(),
		})
	}
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.trackedViews = nextViews
		self.extensions = extensions
	}()
	self.editor.RefreshExtensions(extensions)
	glog.V(1).Infof("[lvm]tracking %d views\n", len(nextViews))
}

// self heal a non empty extension bundle with zero tracked views
func (self *LiveViewManager) repairExtensions() {
	repair := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if len(self.trackedViews) == 0 && 0 < len(self.extensions) {
			self.extensions = nil
			repair = true
		}
	}()
	if repair {
		glog.Warningf("[lvm]extensions out of sync with tracked views. clearing.\n")
		self.editor.RefreshExtensions(nil)
	}
}

func (self *LiveViewManager) showLoginBanners(desiredViews []*TrackedView) {
	for _, trackedView := range desiredViews {
		view := trackedView.View()
		show := false
		func() {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			if _, ok := self.loginBanners[view.ViewId()]; ok {
				return
			}
			// reserve the slot before showing, so a repeated refresh while
			// still logged out cannot double up banners
			self.loginBanners[view.ViewId()] = nil
			show = true
		}()
		if !show {
			continue
		}
		banner := self.ui.ShowLoginBanner(view, self.auth.Login)
		func() {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			self.loginBanners[view.ViewId()] = banner
		}()
	}
}

func (self *LiveViewManager) TrackedViews() []*TrackedView {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.trackedViews)
}

func (self *LiveViewManager) Extensions() []*ViewExtension {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.extensions)
}

// NetworkStatus
func (self *LiveViewManager) Online() bool {
	return self.network.Online()
}

// Destroy releases every tracked view, clears the extension bundle, and
// unsubscribes from all collaborator events.
func (self *LiveViewManager) Destroy() {
	self.cancel()

	var trackedViews []*TrackedView
	var banners []Banner
	var unsubs []func()
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		trackedViews = self.trackedViews
		self.trackedViews = nil
		self.extensions = nil
		for _, banner := range self.loginBanners {
			if banner != nil {
				banners = append(banners, banner)
			}
		}
		self.loginBanners = map[Id]Banner{}
		unsubs = self.unsubs
		self.unsubs = nil
	}()

	for _, unsub := range unsubs {
		unsub()
	}
	for _, trackedView := range trackedViews {
		trackedView.Release()
	}
	for _, banner := range banners {
		banner.Destroy()
	}
	self.editor.RefreshExtensions(nil)
}
