package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/commonedit/liveview/liveview"
)

// Session is the live handle for one file in a shared folder. The status is
// driven entirely by relay frames; the handle itself never decides it is
// connected. Readiness resolves on the first status frame for the path.
type Session struct {
	client *Client
	folder *Folder
	path   string

	stateLock sync.Mutex

	status liveview.SessionStatus

	// whether the handle wants an active subscription. Used to resubscribe
	// after a reconnect.
	subscribeIntent bool

	readyErr    error
	readyNotify chan struct{}
	readyOnce   sync.Once

	statusCallbacks    *liveview.CallbackList[liveview.StatusFunction]
	connectedCallbacks []*func()
}

func newSession(client *Client, folder *Folder, path string) *Session {
	return &Session{
		client:          client,
		folder:          folder,
		path:            path,
		status:          liveview.SessionStatusConnecting,
		readyNotify:     make(chan struct{}),
		statusCallbacks: liveview.NewCallbackList[liveview.StatusFunction](),
	}
}

// the initial subscribe materializes the file on the relay and yields the
// first status frame, which resolves readiness. Sent by the folder once the
// handle is resolvable, so the status reply cannot race the cache insert.
func (self *Session) subscribe(create bool) {
	self.client.sendFrame(&Frame{
		Type:   FrameTypeSubscribe,
		Folder: self.folder.path,
		Path:   self.path,
		Create: create,
	})
}

func (self *Session) Path() string {
	return self.path
}

func (self *Session) WhenReady(ctx context.Context) error {
	select {
	case <-self.readyNotify:
	case <-ctx.Done():
		return ctx.Err()
	}
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.readyErr
}

func (self *Session) Connect() {
	connecting := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.subscribeIntent = true
		connecting = !self.status.IsConnected()
	}()
	if connecting {
		self.setStatus(liveview.SessionStatusConnecting)
	}
	self.client.sendFrame(&Frame{
		Type:   FrameTypeSubscribe,
		Folder: self.folder.path,
		Path:   self.path,
	})
}

func (self *Session) Disconnect() {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.subscribeIntent = false
	}()
	self.client.sendFrame(&Frame{
		Type:   FrameTypeUnsubscribe,
		Folder: self.folder.path,
		Path:   self.path,
	})
	self.setStatus(liveview.SessionStatusDisconnected)
}

func (self *Session) Status() liveview.SessionStatus {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.status
}

func (self *Session) AddStatusCallback(statusCallback liveview.StatusFunction) func() {
	callbackId := self.statusCallbacks.Add(statusCallback)
	return func() {
		self.statusCallbacks.Remove(callbackId)
	}
}

func (self *Session) OnceConnected(connectedCallback func()) func() {
	entry := &connectedCallback
	self.stateLock.Lock()
	self.connectedCallbacks = append(self.connectedCallbacks, entry)
	self.stateLock.Unlock()
	return func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		*entry = nil
	}
}

func (self *Session) ProviderToken(ctx context.Context) (*liveview.ProviderToken, error) {
	return liveview.ParseProviderTokenUnverified(self.client.auth.ByJwt)
}

// a status frame arrived for this path
func (self *Session) handleStatus(status liveview.SessionStatus) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if status.IsError() {
			self.readyErr = fmt.Errorf("session error for %s", self.path)
		}
	}()
	self.readyOnce.Do(func() {
		close(self.readyNotify)
	})
	self.setStatus(status)
}

// the websocket went down. Only a connected or connecting handle transitions.
func (self *Session) connectionDown() {
	down := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		down = self.status == liveview.SessionStatusConnected ||
			self.status == liveview.SessionStatusConnecting
	}()
	if down {
		self.setStatus(liveview.SessionStatusDisconnected)
	}
}

// the websocket came back up. Resubscribe if the handle still wants it.
func (self *Session) resubscribe() {
	intent := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		intent = self.subscribeIntent
	}()
	if !intent {
		return
	}
	self.setStatus(liveview.SessionStatusConnecting)
	self.client.sendFrame(&Frame{
		Type:   FrameTypeSubscribe,
		Folder: self.folder.path,
		Path:   self.path,
	})
}

func (self *Session) setStatus(status liveview.SessionStatus) {
	var connectedCallbacks []*func()
	changed := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.status == status {
			return
		}
		self.status = status
		changed = true
		if status == liveview.SessionStatusConnected {
			connectedCallbacks = self.connectedCallbacks
			self.connectedCallbacks = nil
		}
	}()
	if !changed {
		return
	}
	for _, statusCallback := range self.statusCallbacks.Get() {
		statusCallback(status)
	}
	for _, connectedCallback := range connectedCallbacks {
		if *connectedCallback != nil {
			(*connectedCallback)()
		}
	}
}
