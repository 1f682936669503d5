package liveview

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// test doubles for the external collaborators. These are also the reference
// shape for host integrations.

var errNotFound = errors.New("file not in folder membership")

type testView struct {
	viewId Id
	path   string
}

func newTestView(path string) *testView {
	return &testView{
		viewId: NewId(),
		path:   path,
	}
}

func (self *testView) ViewId() Id {
	return self.viewId
}

func (self *testView) Path() string {
	return self.path
}

type testSession struct {
	path string

	mutex              sync.Mutex
	status             SessionStatus
	readyErr           error
	readyGate          chan struct{}
	readyCount         int
	connectCount       int
	disconnectCount    int
	tokenCount         int
	connectedCallbacks []*func()

	statusCallbacks *CallbackList[StatusFunction]
}

func newTestSession(path string) *testSession {
	return &testSession{
		path:            path,
		status:          SessionStatusDisconnected,
		statusCallbacks: NewCallbackList[StatusFunction](),
	}
}

func (self *testSession) Path() string {
	return self.path
}

func (self *testSession) WhenReady(ctx context.Context) error {
	self.mutex.Lock()
	self.readyCount += 1
	gate := self.readyGate
	err := self.readyErr
	self.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (self *testSession) Connect() {
	self.mutex.Lock()
	self.connectCount += 1
	self.mutex.Unlock()
	self.setStatus(SessionStatusConnected)
}

func (self *testSession) Disconnect() {
	self.mutex.Lock()
	self.disconnectCount += 1
	self.mutex.Unlock()
	self.setStatus(SessionStatusDisconnected)
}

func (self *testSession) Status() SessionStatus {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.status
}

func (self *testSession) setStatus(status SessionStatus) {
	var connectedCallbacks []*func()
	changed := false
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		if self.status == status {
			return
		}
		self.status = status
		changed = true
		if status == SessionStatusConnected {
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

func (self *testSession) AddStatusCallback(statusCallback StatusFunction) func() {
	callbackId := self.statusCallbacks.Add(statusCallback)
	return func() {
		self.statusCallbacks.Remove(callbackId)
	}
}

func (self *testSession) OnceConnected(connectedCallback func()) func() {
	entry := &connectedCallback
	self.mutex.Lock()
	self.connectedCallbacks = append(self.connectedCallbacks, entry)
	self.mutex.Unlock()
	return func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		*entry = nil
	}
}

func (self *testSession) ProviderToken(ctx context.Context) (*ProviderToken, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.tokenCount += 1
	return &ProviderToken{}, nil
}

func (self *testSession) statusCallbackCount() int {
	return len(self.statusCallbacks.Get())
}

func (self *testSession) counts() (readyCount int, connectCount int, disconnectCount int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.readyCount, self.connectCount, self.disconnectCount
}

type testFolder struct {
	path string

	mutex        sync.Mutex
	sessions     map[string]*testSession
	getFileErrs  map[string]error
	connectCount int
}

func newTestFolder(path string) *testFolder {
	return &testFolder{
		path:        path,
		sessions:    map[string]*testSession{},
		getFileErrs: map[string]error{},
	}
}

func (self *testFolder) Path() string {
	return self.path
}

func (self *testFolder) GetFile(path string, create bool) (Session, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if err, ok := self.getFileErrs[path]; ok {
		return nil, err
	}
	if session, ok := self.sessions[path]; ok {
		return session, nil
	}
	if !create {
		return nil, errNotFound
	}
	session := newTestSession(path)
	self.sessions[path] = session
	return session, nil
}

func (self *testFolder) WhenReady(ctx context.Context) ([]Session, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	sessions := make([]Session, 0, len(self.sessions))
	for _, session := range self.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (self *testFolder) Connect() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.connectCount += 1
}

func (self *testFolder) session(path string) *testSession {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.sessions[path]
}

type testProvider struct {
	mutex               sync.Mutex
	folders             []*testFolder
	membershipCallbacks *CallbackList[MembershipFunction]
}

func newTestProvider(folders ...*testFolder) *testProvider {
	return &testProvider{
		folders:             folders,
		membershipCallbacks: NewCallbackList[MembershipFunction](),
	}
}

func (self *testProvider) Lookup(path string) Folder {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	for _, folder := range self.folders {
		if strings.HasPrefix(path, folder.path+"/") {
			return folder
		}
	}
	return nil
}

func (self *testProvider) AddMembershipCallback(membershipCallback MembershipFunction) func() {
	callbackId := self.membershipCallbacks.Add(membershipCallback)
	return func() {
		self.membershipCallbacks.Remove(callbackId)
	}
}

func (self *testProvider) membershipChanged(folder Folder) {
	for _, membershipCallback := range self.membershipCallbacks.Get() {
		membershipCallback(folder)
	}
}

type testEditor struct {
	mutex               sync.Mutex
	views               []EditorView
	extensionHistory    [][]*ViewExtension
	viewChangeCallbacks *CallbackList[func()]
}

func newTestEditor(views ...EditorView) *testEditor {
	return &testEditor{
		views:               views,
		viewChangeCallbacks: NewCallbackList[func()](),
	}
}

func (self *testEditor) OpenViews() []EditorView {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	views := make([]EditorView, len(self.views))
	copy(views, self.views)
	return views
}

func (self *testEditor) RefreshExtensions(extensions []*ViewExtension) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.extensionHistory = append(self.extensionHistory, extensions)
}

func (self *testEditor) AddViewChangeCallback(viewChangeCallback func()) func() {
	callbackId := self.viewChangeCallbacks.Add(viewChangeCallback)
	return func() {
		self.viewChangeCallbacks.Remove(callbackId)
	}
}

func (self *testEditor) setViews(views ...EditorView) {
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		self.views = views
	}()
	for _, viewChangeCallback := range self.viewChangeCallbacks.Get() {
		viewChangeCallback()
	}
}

// change the open set without firing the view change event, for tests that
// drive reconciliation directly
func (self *testEditor) setViewsQuiet(views ...EditorView) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.views = views
}

func (self *testEditor) refreshCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.extensionHistory)
}

func (self *testEditor) lastExtensions() []*ViewExtension {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if len(self.extensionHistory) == 0 {
		return nil
	}
	return self.extensionHistory[len(self.extensionHistory)-1]
}

type testBanner struct {
	mutex        sync.Mutex
	destroyCount int
}

func (self *testBanner) Destroy() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.destroyCount += 1
}

func (self *testBanner) destroyed() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.destroyCount
}

type testUi struct {
	mutex            sync.Mutex
	statusIcons      map[Id]SessionStatus
	clearCount       int
	offlineBanners   []*testBanner
	loginBanners     []*testBanner
	loginBannerViews map[Id]int
}

func newTestUi() *testUi {
	return &testUi{
		statusIcons:      map[Id]SessionStatus{},
		loginBannerViews: map[Id]int{},
	}
}

func (self *testUi) SetStatusIcon(view EditorView, status SessionStatus) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.statusIcons[view.ViewId()] = status
}

func (self *testUi) ClearStatusIcon(view EditorView) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	delete(self.statusIcons, view.ViewId())
	self.clearCount += 1
}

func (self *testUi) ShowOfflineBanner(view EditorView) Banner {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	banner := &testBanner{}
	self.offlineBanners = append(self.offlineBanners, banner)
	return banner
}

func (self *testUi) ShowLoginBanner(view EditorView, login func()) Banner {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	banner := &testBanner{}
	self.loginBanners = append(self.loginBanners, banner)
	self.loginBannerViews[view.ViewId()] += 1
	return banner
}

func (self *testUi) statusIcon(view EditorView) (SessionStatus, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	status, ok := self.statusIcons[view.ViewId()]
	return status, ok
}

func (self *testUi) offlineBannerCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.offlineBanners)
}

func (self *testUi) loginBannerCount(view EditorView) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.loginBannerViews[view.ViewId()]
}

type testAuth struct {
	mutex         sync.Mutex
	hasUser       bool
	loginCount    int
	userCallbacks *CallbackList[func(bool)]
}

func newTestAuth(hasUser bool) *testAuth {
	return &testAuth{
		hasUser:       hasUser,
		userCallbacks: NewCallbackList[func(bool)](),
	}
}

func (self *testAuth) HasUser() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.hasUser
}

func (self *testAuth) Login() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.loginCount += 1
}

func (self *testAuth) AddUserCallback(userCallback func(hasUser bool)) func() {
	callbackId := self.userCallbacks.Add(userCallback)
	return func() {
		self.userCallbacks.Remove(callbackId)
	}
}

func (self *testAuth) setUser(hasUser bool) {
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		self.hasUser = hasUser
	}()
	for _, userCallback := range self.userCallbacks.Get() {
		userCallback(hasUser)
	}
}

type testNetwork struct {
	mutex           sync.Mutex
	online          bool
	checkCount      int
	onlineCallbacks []*func()
}

func newTestNetwork(online bool) *testNetwork {
	return &testNetwork{
		online: online,
	}
}

func (self *testNetwork) Online() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.online
}

func (self *testNetwork) CheckStatus() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.checkCount += 1
}

func (self *testNetwork) OnceOnline(onlineCallback func()) func() {
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

func (self *testNetwork) setOnline(online bool) {
	var onlineCallbacks []*func()
	func() {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		wasOnline := self.online
		self.online = online
		if online && !wasOnline {
			onlineCallbacks = self.onlineCallbacks
			self.onlineCallbacks = nil
		}
	}()
	for _, onlineCallback := range onlineCallbacks {
		if *onlineCallback != nil {
			(*onlineCallback)()
		}
	}
}
