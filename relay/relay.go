// Package relay is the websocket folder/session provider for the live view
// engine. One Client per relay service; the client owns the connection
// lifecycle and fans frames out to its folders and their sessions.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"

	"github.com/commonedit/liveview/liveview"
)

type ClientSettings struct {
	WsHandshakeTimeout time.Duration
	AuthTimeout        time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	SendBufferSize     int
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		WsHandshakeTimeout: 2 * time.Second,
		AuthTimeout:        2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
		SendBufferSize:     32,
	}
}

type ClientAuth struct {
	ByJwt string
}

func (self *ClientAuth) UserId() (liveview.Id, error) {
	providerToken, err := liveview.ParseProviderTokenUnverified(self.ByJwt)
	if err != nil {
		return liveview.Id{}, err
	}
	return providerToken.UserId, nil
}

type Reconnect struct {
	endTime time.Time
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		endTime: time.Now().Add(timeout),
	}
}

func (self *Reconnect) After() <-chan time.Time {
	return time.After(time.Until(self.endTime))
}

// Client speaks the relay control plane over one websocket. It implements
// `liveview.FolderProvider`. Frames queued while the connection is down sit
// in a bounded buffer and drain on reconnect; anything beyond the buffer is
// dropped and recovered by the resubscribe pass.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	relayUrl string
	auth     *ClientAuth

	settings *ClientSettings

	stateLock sync.Mutex
	folders   []*Folder

	send chan []byte

	membershipCallbacks *liveview.CallbackList[liveview.MembershipFunction]
}

func NewClientWithDefaults(ctx context.Context, relayUrl string, auth *ClientAuth) *Client {
	return NewClient(ctx, relayUrl, auth, DefaultClientSettings())
}

func NewClient(ctx context.Context, relayUrl string, auth *ClientAuth, settings *ClientSettings) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ctx:                 cancelCtx,
		cancel:              cancel,
		relayUrl:            relayUrl,
		auth:                auth,
		settings:            settings,
		send:                make(chan []byte, settings.SendBufferSize),
		membershipCallbacks: liveview.NewCallbackList[liveview.MembershipFunction](),
	}
	go client.run()
	return client
}

// AddFolder registers a shared folder with the client. Lookup resolves paths
// under it from then on.
func (self *Client) AddFolder(path string) *Folder {
	folder := newFolder(self.ctx, self, path)
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.folders = append(self.folders, folder)
	return folder
}

// FolderProvider
func (self *Client) Lookup(path string) liveview.Folder {
	folder := self.folderForPath(path)
	if folder == nil {
		return nil
	}
	return folder
}

// FolderProvider
func (self *Client) AddMembershipCallback(membershipCallback liveview.MembershipFunction) func() {
	callbackId := self.membershipCallbacks.Add(membershipCallback)
	return func() {
		self.membershipCallbacks.Remove(callbackId)
	}
}

func (self *Client) folderForPath(path string) *Folder {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	for _, folder := range self.folders {
		if strings.HasPrefix(path, folder.path+"/") {
			return folder
		}
	}
	return nil
}

func (self *Client) folderAt(path string) *Folder {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	for _, folder := range self.folders {
		if folder.path == path {
			return folder
		}
	}
	return nil
}

func (self *Client) allFolders() []*Folder {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	folders := make([]*Folder, len(self.folders))
	copy(folders, self.folders)
	return folders
}

func (self *Client) sendFrame(frame *Frame) {
	message, err := EncodeFrame(frame)
	if err != nil {
		glog.Warningf("[relay]encode error = %s\n", err)
		return
	}
	select {
	case self.send <- message:
	case <-self.ctx.Done():
	default:
		// recovered by the resubscribe pass on the next connect
		glog.Infof("[relay]drop %s->\n", frame.Type)
	}
}

func (self *Client) run() {
	defer self.cancel()

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)
		connect := func() (*websocket.Conn, error) {
			return self.connect()
		}

		var ws *websocket.Conn
		var err error
		if glog.V(2) {
			ws, err = liveview.TraceWithReturnError("[relay]connect", connect)
		} else {
			ws, err = connect()
		}
		if err != nil {
			glog.Infof("[relay]auth error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		reconnect = NewReconnect(self.settings.ReconnectTimeout)
		self.handle(ws)
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *Client) connect() (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(self.ctx, self.relayUrl, nil)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()

	authBytes, err := EncodeFrame(&Frame{
		Type: FrameTypeAuth,
		Jwt:  self.auth.ByJwt,
	})
	if err != nil {
		return nil, err
	}

	ws.SetWriteDeadline(time.Now().Add(self.settings.AuthTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, authBytes); err != nil {
		return nil, err
	}
	ws.SetReadDeadline(time.Now().Add(self.settings.AuthTimeout))
	if messageType, message, err := ws.ReadMessage(); err != nil {
		return nil, err
	} else {
		// verify the auth echo
		switch messageType {
		case websocket.TextMessage:
			if !bytes.Equal(authBytes, message) {
				return nil, fmt.Errorf("auth response error: bad bytes")
			}
		default:
			return nil, fmt.Errorf("auth response error")
		}
	}

	success = true
	return ws, nil
}

func (self *Client) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	for _, folder := range self.allFolders() {
		folder.resubscribe()
	}

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case message, ok := <-self.send:
				if !ok {
					return
				}

				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
					// note that for websocket a deadline timeout cannot be recovered
					glog.Infof("[relay]-> error = %s\n", err)
					return
				}
				glog.V(2).Infof("[relay]->\n")
			case <-time.After(self.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			default:
			}

			ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				glog.Infof("[relay]<- error = %s\n", err)
				return
			}

			switch messageType {
			case websocket.TextMessage:
				if 0 == len(message) {
					// ping
					glog.V(2).Infof("[relay]ping<-\n")
					continue
				}
				frame, err := DecodeFrame(message)
				if err != nil {
					glog.Warningf("[relay]bad frame = %s\n", err)
					continue
				}
				self.dispatch(frame)
			default:
				glog.V(2).Infof("[relay]other=%d<-\n", messageType)
			}
		}
	}()

	<-handleCtx.Done()

	for _, folder := range self.allFolders() {
		folder.connectionDown()
	}
}

func (self *Client) dispatch(frame *Frame) {
	switch frame.Type {
	case FrameTypeMembership:
		folder := self.folderAt(frame.Folder)
		if folder == nil {
			glog.V(1).Infof("[relay]membership for unknown folder %s\n", frame.Folder)
			return
		}
		folder.handleMembership(frame.Paths)
		for _, membershipCallback := range self.membershipCallbacks.Get() {
			membershipCallback(folder)
		}
	case FrameTypeStatus:
		folder := self.folderForPath(frame.Path)
		if folder == nil {
			return
		}
		session := folder.activeSession(frame.Path)
		if session == nil {
			return
		}
		session.handleStatus(liveview.SessionStatus(frame.Status))
	default:
		glog.V(1).Infof("[relay]unknown frame %s<-\n", frame.Type)
	}
}

func (self *Client) Close() {
	self.cancel()
}
