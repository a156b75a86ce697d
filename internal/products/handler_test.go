package products

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/affiliate"
	"pricewatch/internal/auth"
	"pricewatch/internal/history"
	"pricewatch/pkg/models"
)

type fakeEnricher struct {
	repo   *Repo
	snap   models.Snapshot
	err    error
	forced []bool
}

func (f *fakeEnricher) Refresh(ctx context.Context, id string, force bool) (*models.Product, error) {
	f.forced = append(f.forced, force)
	if f.err != nil {
		return nil, f.err
	}
	p, err := f.repo.FindByID(ctx, id)
	if err != nil || p == nil {
		if p == nil && err == nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	res := history.Reconcile(*p, f.snap, history.Options{Force: force}, time.Now())
	if _, err := f.repo.ApplyReconcile(ctx, id, res); err != nil {
		return nil, err
	}
	return f.repo.FindByID(ctx, id)
}

var testTokens = auth.TokenService{Secret: []byte("s"), Issuer: "pricewatch", Duration: time.Hour}

func newTestServer(t *testing.T, enricher *fakeEnricher) (*gin.Engine, *Repo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := newTestRepo(t)
	if enricher != nil {
		enricher.repo = repo
	}
	var e Enricher
	if enricher != nil {
		e = enricher
	}
	h := NewHandler(repo, e, affiliate.NewDeriver(affiliate.Tags{FlipkartID: "fkaff"}), nil, testTokens, nil)
	r := gin.New()
	h.RegisterRoutes(r.Group(""))
	return r, repo
}

func do(r *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrackCreatesEnrichesAndDedups(t *testing.T) {
	enricher := &fakeEnricher{snap: models.Snapshot{Title: str("Boat Airdopes 141"), Price: num(1299)}}
	r, _ := newTestServer(t, enricher)

	w := do(r, http.MethodPost, "/products", `{"url":"www.flipkart.com/boat-airdopes/p/itm1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "https://www.flipkart.com/boat-airdopes/p/itm1", got["url"])
	assert.Equal(t, "Boat Airdopes 141", got["title"])
	assert.Equal(t, 1299.0, got["price"])
	assert.Equal(t, "https://www.flipkart.com/boat-airdopes/p/itm1?affid=fkaff", got["affiliateUrl"])
	assert.Len(t, got["priceHistory"], 1)

	w = do(r, http.MethodPost, "/products", `{"url":"https://www.flipkart.com/boat-airdopes/p/itm1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, enricher.forced, 1, "existing products are not re-enriched on track")
}

func TestTrackWithEmptySnapshotStillSucceeds(t *testing.T) {
	r, _ := newTestServer(t, &fakeEnricher{})

	w := do(r, http.MethodPost, "/products", `{"url":"https://example.com/widget-pro/p/itmabc123"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Nil(t, got["title"])
	assert.Nil(t, got["price"])
	assert.Equal(t, "Widget Pro", got["displayTitle"])
}

func TestTrackErrors(t *testing.T) {
	r, _ := newTestServer(t, &fakeEnricher{err: errors.New("disk full")})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/products", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/products", `{"url":"not a url"}`).Code)
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/products", `{"url":"https://example.com/a"}`).Code)
}

func TestRefreshForceRequiresAdmin(t *testing.T) {
	enricher := &fakeEnricher{snap: models.Snapshot{Title: str("New Name")}}
	r, repo := newTestServer(t, enricher)
	p, err := repo.Insert(context.Background(), "https://example.com/a", nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/products/"+p.ID+"/refresh?force=true", "").Code)

	admin, _, err := testTokens.Sign("ops", auth.RoleAdmin)
	require.NoError(t, err)
	w := do(r, http.MethodPost, "/products/"+p.ID+"/refresh?force=true", "", "Authorization", "Bearer "+admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []bool{true}, enricher.forced)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/products/"+p.ID+"/refresh", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/products/missing/refresh", "").Code)
}

func TestReadRoutes(t *testing.T) {
	r, repo := newTestServer(t, nil)
	ctx := context.Background()
	p, err := repo.Insert(ctx, "https://www.flipkart.com/kettle/p/itm9", nil)
	require.NoError(t, err)
	_, err = repo.ApplyReconcile(ctx, p.ID, history.Result{
		Updates:       history.Updates{Price: num(799)},
		HistoryAppend: &models.PricePoint{At: time.Now().UTC(), Price: 799},
	})
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/products/"+p.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "https://www.flipkart.com/kettle/p/itm9?affid=fkaff", got["affiliateUrl"], "derived at read time")
	assert.Equal(t, "Kettle", got["displayTitle"])

	w = do(r, http.MethodGet, "/products/"+p.ID+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price":799`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/products/missing", "").Code)

	w = do(r, http.MethodPost, "/products/"+p.ID+"/watch", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"watchCount":1`)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/products/missing/watch", "").Code)

	w = do(r, http.MethodGet, "/products?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/products/"+p.ID+"/refresh", "").Code)
}

func TestRedirectLogsClick(t *testing.T) {
	r, repo := newTestServer(t, nil)
	ctx := context.Background()
	p, err := repo.Insert(ctx, "https://www.flipkart.com/x/p/itm1", str("https://www.flipkart.com/x/p/itm1?affid=stored"))
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/r/"+p.ID, "", "Referer", "https://blog.example/post")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://www.flipkart.com/x/p/itm1?affid=stored", w.Header().Get("Location"))

	n, err := repo.ClickCount(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	w = do(r, http.MethodGet, "/r/unknown", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestShortLinkExpander(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.flipkart.com/boat/p/itm1?pid=ACC1", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	e := NewShortLinkExpander(time.Second)
	// the test server is not a known short-link host
	assert.Equal(t, srv.URL+"/s/abc", e.Expand(context.Background(), srv.URL+"/s/abc"))

	e.Hosts = append(e.Hosts, "127.0.0.1")
	assert.Equal(t, "https://www.flipkart.com/boat/p/itm1?pid=ACC1", e.Expand(context.Background(), srv.URL+"/s/abc"))

	var nilExpander *ShortLinkExpander
	assert.Equal(t, "https://x.example/", nilExpander.Expand(context.Background(), "https://x.example/"))
}
