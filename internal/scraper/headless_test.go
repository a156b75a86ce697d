package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pricewatch/pkg/logger"
)

func TestReleaseOutlivesCancelledRenderContext(t *testing.T) {
	renderCtx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, renderCtx.Err())

	var got context.Context
	release(nil, "page", func(ctx context.Context) error {
		got = ctx
		return ctx.Err()
	})

	require.NotNil(t, got)
	assert.NoError(t, got.Err(), "teardown gets a live context")
	deadline, ok := got.Deadline()
	require.True(t, ok, "teardown is bounded")
	assert.WithinDuration(t, time.Now().Add(releaseTimeout), deadline, releaseTimeout)
}

func TestReleaseLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	release(log, "incognito", func(context.Context) error { return errors.New("target gone") })
	release(log, "page", func(context.Context) error { return nil })

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rod: release failed", entries[0].Message)
	assert.Equal(t, "incognito", entries[0].ContextMap()["target"])
}

// Needs a local Chromium: PRICEWATCH_TEST_BROWSER=1 go test ./internal/scraper
func TestRodRendererReleasesTargetsOnTimeout(t *testing.T) {
	if testing.Short() || os.Getenv("PRICEWATCH_TEST_BROWSER") == "" {
		t.Skip("PRICEWATCH_TEST_BROWSER not set")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	l := launcher.New().Headless(true).Set("no-sandbox")
	defer l.Cleanup()
	defer l.Kill()
	controlURL, err := l.Launch()
	require.NoError(t, err)

	r := &RodRenderer{ControlURL: controlURL, NavTimeout: 10 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = r.Render(ctx, srv.URL)
	require.Error(t, err)

	b := rod.New().ControlURL(controlURL)
	require.NoError(t, b.Connect())
	defer b.Close()

	res, err := proto.TargetGetBrowserContexts{}.Call(b)
	require.NoError(t, err)
	assert.Empty(t, res.BrowserContextIDs, "incognito context left open")

	pages, err := b.Pages()
	require.NoError(t, err)
	for _, p := range pages {
		info, err := p.Info()
		require.NoError(t, err)
		assert.NotContains(t, info.URL, srv.URL)
	}
}
