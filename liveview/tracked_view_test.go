package liveview

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestAttachIdempotence(t *testing.T) {
	ctx := context.Background()

	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	ui := newTestUi()
	network := newTestNetwork(true)

	trackedView := NewTrackedView(view, session, ui, network)
	trackedView.Attach(ctx)
	trackedView.Attach(ctx)

	// the status listener is installed once
	assert.Equal(t, session.statusCallbackCount(), 1)

	// both attaches connected the session. connect is idempotent.
	_, connectCount, disconnectCount := session.counts()
	assert.Equal(t, connectCount, 2)
	assert.Equal(t, disconnectCount, 0)

	status, ok := ui.statusIcon(view)
	assert.Equal(t, ok, true)
	assert.Equal(t, status, SessionStatusConnected)
}

func TestAttachReadyFailureShowsOfflineBanner(t *testing.T) {
	ctx := context.Background()

	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	session.readyErr = errors.New("rename mid flight")
	ui := newTestUi()
	network := newTestNetwork(false)

	trackedView := NewTrackedView(view, session, ui, network)
	trackedView.Attach(ctx)

	// readiness failure is an offline condition, not an error
	assert.Equal(t, ui.offlineBannerCount(), 1)
	_, connectCount, _ := session.counts()
	assert.Equal(t, connectCount, 0)
}

func TestAttachReadyFailureOnline(t *testing.T) {
	ctx := context.Background()

	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	session.readyErr = errors.New("rename mid flight")
	ui := newTestUi()
	network := newTestNetwork(true)

	trackedView := NewTrackedView(view, session, ui, network)
	trackedView.Attach(ctx)

	// showing the offline banner while online is a no-op
	assert.Equal(t, ui.offlineBannerCount(), 0)
}

func TestToggleConnection(t *testing.T) {
	ctx := context.Background()

	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	ui := newTestUi()
	network := newTestNetwork(true)

	trackedView := NewTrackedView(view, session, ui, network)
	assert.Equal(t, trackedView.ShouldConnect(), true)

	trackedView.Attach(ctx)
	assert.Equal(t, session.Status(), SessionStatusConnected)

	trackedView.ToggleConnection()
	assert.Equal(t, trackedView.ShouldConnect(), false)
	assert.Equal(t, session.Status(), SessionStatusDisconnected)

	trackedView.ToggleConnection()
	assert.Equal(t, trackedView.ShouldConnect(), true)
	assert.Equal(t, session.Status(), SessionStatusConnected)
}

func TestOfflineBannerLifecycle(t *testing.T) {
	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	ui := newTestUi()
	network := newTestNetwork(false)

	trackedView := NewTrackedView(view, session, ui, network)

	dispose := trackedView.ShowOfflineBanner()
	trackedView.ShowOfflineBanner()

	// exactly one banner regardless of how many times it is shown
	assert.Equal(t, ui.offlineBannerCount(), 1)
	banner := ui.offlineBanners[0]

	// both the one shot connected event and the disposer fire. destroyed once.
	session.setStatus(SessionStatusConnected)
	dispose()
	dispose()
	assert.Equal(t, banner.destroyed(), 1)

	// a fresh outage shows a fresh banner
	session.setStatus(SessionStatusDisconnected)
	trackedView.ShowOfflineBanner()
	assert.Equal(t, ui.offlineBannerCount(), 2)
}

func TestOfflineBannerRespectsIntent(t *testing.T) {
	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	ui := newTestUi()
	network := newTestNetwork(false)

	trackedView := NewTrackedView(view, session, ui, network)
	trackedView.SetConnected(false)

	dispose := trackedView.ShowOfflineBanner()
	assert.Equal(t, ui.offlineBannerCount(), 0)
	// the disposer is still returned and still safe
	dispose()
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	ui := newTestUi()
	network := newTestNetwork(true)

	trackedView := NewTrackedView(view, session, ui, network)
	trackedView.Attach(ctx)
	assert.Equal(t, session.statusCallbackCount(), 1)

	trackedView.Release()
	assert.Equal(t, session.statusCallbackCount(), 0)
	_, _, disconnectCount := session.counts()
	assert.Equal(t, disconnectCount, 1)
	_, ok := ui.statusIcon(view)
	assert.Equal(t, ok, false)

	// terminal and repeatable
	trackedView.Release()
	_, _, disconnectCount = session.counts()
	assert.Equal(t, disconnectCount, 1)

	// attach after release is a no-op
	trackedView.Attach(ctx)
	assert.Equal(t, session.statusCallbackCount(), 0)
}

func TestReleaseWithoutAttach(t *testing.T) {
	view := newTestView("notes/a.md")
	session := newTestSession("notes/a.md")
	ui := newTestUi()
	network := newTestNetwork(true)

	trackedView := NewTrackedView(view, session, ui, network)
	trackedView.Release()

	_, _, disconnectCount := session.counts()
	assert.Equal(t, disconnectCount, 1)
}

func TestTrackedViewIdentity(t *testing.T) {
	viewA := newTestView("notes/a.md")
	viewB := newTestView("notes/a.md")
	sessionA := newTestSession("notes/a.md")
	sessionB := newTestSession("notes/a.md")
	ui := newTestUi()
	network := newTestNetwork(true)

	trackedView := NewTrackedView(viewA, sessionA, ui, network)

	// identity, not path equality
	assert.Equal(t, trackedView.Is(viewA, sessionA), true)
	assert.Equal(t, trackedView.Is(viewB, sessionA), false)
	assert.Equal(t, trackedView.Is(viewA, sessionB), false)

	// an editor side rename leaves identity intact
	viewA.path = "notes/renamed.md"
	assert.Equal(t, trackedView.Is(viewA, sessionA), true)
}
