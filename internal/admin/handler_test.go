package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/auth"
	"pricewatch/internal/batch"
	"pricewatch/internal/enrich"
	"pricewatch/internal/lock"
	"pricewatch/internal/products"
	"pricewatch/pkg/database"
	"pricewatch/pkg/models"
	"pricewatch/pkg/utils"
)

type fixedResolver struct{ snap models.Snapshot }

func (f fixedResolver) Resolve(context.Context, string) models.Snapshot { return f.snap }

var tokens = auth.TokenService{Secret: []byte("s"), Issuer: "pricewatch", Duration: time.Hour}

func setup(t *testing.T) (*gin.Engine, *products.Repo, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.OpenAndMigrate(database.Config{Path: filepath.Join(t.TempDir(), "admin.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := products.NewRepo(db)
	title := "Desk Lamp"
	svc := enrich.NewService(repo, fixedResolver{snap: models.Snapshot{Title: &title}}, lock.NewLocalLocker(), nil)
	runner := batch.NewRunner(repo, svc, nil)
	runner.Sleep = func(context.Context, time.Duration) error { return nil }

	h := NewHandler(repo, runner, tokens, utils.BatchConfig{Size: 10}, nil)
	r := gin.New()
	h.RegisterRoutes(r.Group("/admin"))

	tok, _, err := tokens.Sign("ops", auth.RoleAdmin)
	require.NoError(t, err)
	return r, repo, tok
}

func call(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBackfillDryRunThenApply(t *testing.T) {
	r, repo, tok := setup(t)
	ctx := context.Background()
	p, err := repo.Insert(ctx, "https://example.com/lamp", nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodPost, "/admin/backfill", `{}`, "").Code)

	w := call(r, http.MethodPost, "/admin/backfill", `{"limit": 5}`, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep batch.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.False(t, rep.Applied)
	assert.Equal(t, 1, rep.Changed)

	stored, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Title)

	w = call(r, http.MethodPost, "/admin/backfill", `{"apply": true, "select": "missing-metadata"}`, tok)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err = repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Title)
	assert.Equal(t, "Desk Lamp", *stored.Title)

	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPost, "/admin/backfill", `{"select": "bogus"}`, tok).Code)
}

func TestRepairRoute(t *testing.T) {
	r, repo, tok := setup(t)
	ctx := context.Background()
	p, err := repo.Insert(ctx, "https://example.com/lamp", nil)
	require.NoError(t, err)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, price := range []float64{100, 100, 90} {
		require.NoError(t, repo.AppendHistoryPoint(ctx, p.ID, models.PricePoint{At: t0.Add(time.Duration(i) * time.Minute), Price: price}))
	}

	w := call(r, http.MethodPost, "/admin/products/"+p.ID+"/repair", "", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":false`)
	pts, err := repo.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, pts, 3)

	w = call(r, http.MethodPost, "/admin/products/"+p.ID+"/repair?apply=true", "", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":true`)
	pts, err = repo.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, pts, 2)

	assert.Equal(t, http.StatusNotFound, call(r, http.MethodPost, "/admin/products/missing/repair", "", tok).Code)
}
