package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/commonedit/liveview/liveview"
)

// headless implementations of the host contracts. Views come from the file
// arguments; icons and banners go to the console.

type watchView struct {
	viewId liveview.Id
	path   string
}

func newWatchView(path string) *watchView {
	return &watchView{
		viewId: liveview.NewId(),
		path:   path,
	}
}

func (self *watchView) ViewId() liveview.Id {
	return self.viewId
}

func (self *watchView) Path() string {
	return self.path
}

type watchEditor struct {
	mutex               sync.Mutex
	views               []liveview.EditorView
	viewChangeCallbacks *liveview.CallbackList[func()]
}

func newWatchEditor(paths []string) *watchEditor {
	views := make([]liveview.EditorView, 0, len(paths))
	for _, path := range paths {
		views = append(views, newWatchView(path))
	}
	return &watchEditor{
		views:               views,
		viewChangeCallbacks: liveview.NewCallbackList[func()](),
	}
}

func (self *watchEditor) OpenViews() []liveview.EditorView {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	views := make([]liveview.EditorView, len(self.views))
	copy(views, self.views)
	return views
}

func (self *watchEditor) RefreshExtensions(extensions []*liveview.ViewExtension) {
	glog.Infof("[ctl]extensions for %d views\n", len(extensions))
}

func (self *watchEditor) AddViewChangeCallback(viewChangeCallback func()) func() {
	callbackId := self.viewChangeCallbacks.Add(viewChangeCallback)
	return func() {
		self.viewChangeCallbacks.Remove(callbackId)
	}
}

type consoleBanner struct {
	message     string
	destroyOnce sync.Once
}

func (self *consoleBanner) Destroy() {
	self.destroyOnce.Do(func() {
		fmt.Printf("[dismissed] %s\n", self.message)
	})
}

type consoleUi struct {
}

func newConsoleUi() *consoleUi {
	return &consoleUi{}
}

func (self *consoleUi) SetStatusIcon(view liveview.EditorView, status liveview.SessionStatus) {
	fmt.Printf("%s [%s]\n", view.Path(), status)
}

func (self *consoleUi) ClearStatusIcon(view liveview.EditorView) {
	fmt.Printf("%s [untracked]\n", view.Path())
}

func (self *consoleUi) ShowOfflineBanner(view liveview.EditorView) liveview.Banner {
	banner := &consoleBanner{
		message: fmt.Sprintf("%s: offline. Edits will sync when the connection returns.", view.Path()),
	}
	fmt.Println(banner.message)
	return banner
}

func (self *consoleUi) ShowLoginBanner(view liveview.EditorView, login func()) liveview.Banner {
	banner := &consoleBanner{
		message: fmt.Sprintf("%s: not logged in.", view.Path()),
	}
	fmt.Println(banner.message)
	return banner
}

// jwtAuth is logged in for the whole run. Login happened before the engine
// started, at the password prompt.
type jwtAuth struct {
	userName      string
	userCallbacks *liveview.CallbackList[func(bool)]
}

func newJwtAuth(userName string) *jwtAuth {
	return &jwtAuth{
		userName:      userName,
		userCallbacks: liveview.NewCallbackList[func(bool)](),
	}
}

func (self *jwtAuth) HasUser() bool {
	return true
}

func (self *jwtAuth) Login() {
	fmt.Printf("already logged in as %s\n", self.userName)
}

func (self *jwtAuth) AddUserCallback(userCallback func(hasUser bool)) func() {
	callbackId := self.userCallbacks.Add(userCallback)
	return func() {
		self.userCallbacks.Remove(callbackId)
	}
}

const networkProbeInterval = 10 * time.Second
const networkProbeTimeout = 5 * time.Second

// probeNetwork watches reachability of the relay host with a periodic tcp
// dial.
type probeNetwork struct {
	ctx     context.Context
	address string

	mutex           sync.Mutex
	online          bool
	onlineCallbacks []*func()

	changeCallbacks *liveview.CallbackList[func(bool)]
}

func newProbeNetwork(ctx context.Context, relayUrl string) (*probeNetwork, error) {
	address, err := probeAddress(relayUrl)
	if err != nil {
		return nil, err
	}
	network := &probeNetwork{
		ctx:     ctx,
		address: address,
		// assume online until the first probe says otherwise
		online:          true,
		changeCallbacks: liveview.NewCallbackList[func(bool)](),
	}
	go network.run()
	return network, nil
}

func probeAddress(relayUrl string) (string, error) {
	parsed, err := url.Parse(relayUrl)
	if err != nil {
		return "", err
	}
	host := parsed.Host
	if parsed.Port() == "" {
		switch parsed.Scheme {
		case "wss", "https":
			host = net.JoinHostPort(parsed.Hostname(), "443")
		default:
			host = net.JoinHostPort(parsed.Hostname(), "80")
		}
	}
	return host, nil
}

func (self *probeNetwork) run() {
	for {
		select {
		case <-self.ctx.Done():
			return
		case <-time.After(networkProbeInterval):
		}
		self.probe()
	}
}

func (self *probeNetwork) probe() {
	conn, err := net.DialTimeout("tcp", self.address, networkProbeTimeout)
	if err == nil {
		conn.Close()
	}
	self.setOnline(err == nil)
}

func (self *probeNetwork) Online() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.online
}

func (self *probeNetwork) CheckStatus() {
	go self.probe()
}

func (self *probeNetwork) OnceOnline(onlineCallback func()) func() {
	entry := &onlineCallback
	self.mutex.Lock()
	self.onlineCallbacks = append(self.onlineCallbacks, entry)
	self.mutex.Unlock()
	return func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		*entry = nil
	}
}

// fires on every online/offline transition. Used to drive the engine's
// offline/online glue.
func (self *probeNetwork) AddOnlineChangeCallback(changeCallback func(online bool)) func() {
	callbackId := self.changeCallbacks.Add(changeCallback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *probeNetwork) setOnline(online bool) {
	var onlineCallbacks []*func()
	changed := false
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		if self.online == online {
			return
		}
		self.online = online
		changed = true
		if online {
			onlineCallbacks = self.onlineCallbacks
			self.onlineCallbacks = nil
		}
	}()
	if !changed {
		return
	}
	glog.Infof("[ctl]network online = %t\n", online)
	for _, onlineCallback := range onlineCallbacks {
		if *onlineCallback != nil {
			(*onlineCallback)()
		}
	}
	for _, changeCallback := range self.changeCallbacks.Get() {
		changeCallback(online)
	}
}
