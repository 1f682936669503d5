package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/golang/glog"

	"github.com/commonedit/liveview/liveview"
)

const sessionCacheTtl = 15 * time.Minute
const sessionCacheCapacity = 1024

// Folder is the relay-backed shared folder. It owns the session handles for
// the files under it, resolved through a ttl cache keyed by path. Handles for
// paths no host has asked about in a while age out; the next lookup creates a
// fresh one.
type Folder struct {
	client *Client
	path   string

	stateLock sync.Mutex

	membership        map[string]bool
	membershipKnown   bool
	membershipMonitor *liveview.Monitor

	connectIntent bool

	cache *ttlcache.Cache[string, *Session]
}

func newFolder(ctx context.Context, client *Client, path string) *Folder {
	cache := ttlcache.New[string, *Session](
		ttlcache.WithTTL[string, *Session](sessionCacheTtl),
		ttlcache.WithCapacity[string, *Session](sessionCacheCapacity),
	)

	cache.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, *Session]) {
		glog.V(2).Infof("[relay]%s session evicted\n", i.Key())
	})

	go cache.Start()

	go func() {
		<-ctx.Done()
		cache.Stop()
	}()

	return &Folder{
		client:            client,
		path:              path,
		membership:        map[string]bool{},
		membershipMonitor: liveview.NewMonitor(),
		cache:             cache,
	}
}

func (self *Folder) Path() string {
	return self.path
}

// GetFile resolves or lazily creates the session handle bound to `path`.
// `create` allows a path outside the known membership, which materializes the
// file on the relay.
func (self *Folder) GetFile(path string, create bool) (liveview.Session, error) {
	if !strings.HasPrefix(path, self.path+"/") {
		return nil, fmt.Errorf("%s is outside folder %s", path, self.path)
	}

	member := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		// before the first membership frame every path under the folder is
		// assumed to be a member
		return !self.membershipKnown || self.membership[path]
	}()
	if !member && !create {
		return nil, fmt.Errorf("%s is not in the membership of %s", path, self.path)
	}

	session, created := func() (*Session, bool) {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if item := self.cache.Get(path); item != nil {
			return item.Value(), false
		}
		session := newSession(self.client, self, path)
		self.cache.Set(path, session, ttlcache.DefaultTTL)
		return session, true
	}()
	if created {
		session.subscribe(!member)
	}
	return session, nil
}

// WhenReady resolves with the session handles for the current membership,
// once the first membership frame arrives.
func (self *Folder) WhenReady(ctx context.Context) ([]liveview.Session, error) {
	for {
		known, notify := func() (bool, <-chan struct{}) {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			return self.membershipKnown, self.membershipMonitor.NotifyChannel()
		}()
		if known {
			break
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var paths []string
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		for path := range self.membership {
			paths = append(paths, path)
		}
	}()

	sessions := make([]liveview.Session, 0, len(paths))
	for _, path := range paths {
		session, err := self.GetFile(path, false)
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (self *Folder) Connect() {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.connectIntent = true
	}()
	// a folder subscribe yields membership frames. The relay treats repeats
	// as idempotent.
	self.client.sendFrame(&Frame{
		Type:   FrameTypeSubscribe,
		Folder: self.path,
	})
}

func (self *Folder) handleMembership(paths []string) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		membership := map[string]bool{}
		for _, path := range paths {
			membership[path] = true
		}
		self.membership = membership
		self.membershipKnown = true
	}()
	self.membershipMonitor.NotifyAll()
	glog.V(1).Infof("[relay]%s membership, %d files\n", self.path, len(paths))
}

func (self *Folder) activeSession(path string) *Session {
	if item := self.cache.Get(path); item != nil {
		return item.Value()
	}
	return nil
}

func (self *Folder) activeSessions() []*Session {
	items := self.cache.Items()
	sessions := make([]*Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, item.Value())
	}
	return sessions
}

func (self *Folder) connectionDown() {
	for _, session := range self.activeSessions() {
		session.connectionDown()
	}
}

func (self *Folder) resubscribe() {
	intent := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		intent = self.connectIntent
	}()
	if intent {
		self.client.sendFrame(&Frame{
			Type:   FrameTypeSubscribe,
			Folder: self.path,
		})
	}
	for _, session := range self.activeSessions() {
		session.resubscribe()
	}
}
