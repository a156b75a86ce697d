package products

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pricewatch/internal/affiliate"
	"pricewatch/internal/auth"
	"pricewatch/internal/normalize"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
)

// Enricher refreshes a product's title, image and price. *enrich.Service
// implements it.
type Enricher interface {
	Refresh(ctx context.Context, id string, force bool) (*models.Product, error)
}

type Handler struct {
	Repo     *Repo
	Enricher Enricher
	Deriver  *affiliate.Deriver
	Expander *ShortLinkExpander
	Tokens   auth.TokenService
	Log      *logger.Logger
}

func NewHandler(repo *Repo, enricher Enricher, deriver *affiliate.Deriver, expander *ShortLinkExpander, tokens auth.TokenService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{Repo: repo, Enricher: enricher, Deriver: deriver, Expander: expander, Tokens: tokens, Log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/products", h.track)                                              // POST /products
	rg.GET("/products", h.list)                                                // GET /products
	rg.GET("/products/:id", h.getByID)                                         // GET /products/:id
	rg.GET("/products/:id/history", h.priceHistory)                            // GET /products/:id/history
	rg.POST("/products/:id/watch", h.watch)                                    // POST /products/:id/watch
	rg.POST("/products/:id/refresh", auth.OptionalClaims(h.Tokens), h.refresh) // POST /products/:id/refresh
	rg.GET("/r/:id", h.redirect)                                               // GET /r/:id
}

// productView is a product as shown to clients: a readable title and the
// outbound link are always filled in.
type productView struct {
	models.Product
	DisplayTitle string `json:"displayTitle"`
	AffiliateURL string `json:"affiliateUrl"`
}

func (h *Handler) view(p *models.Product) productView {
	out := productView{Product: *p, DisplayTitle: normalize.DisplayTitle(p.Title, p.URL)}
	if p.AffiliateURL != nil {
		out.AffiliateURL = *p.AffiliateURL
	} else {
		out.AffiliateURL = h.Deriver.Derive(p.URL)
	}
	return out
}

type trackReq struct {
	URL string `json:"url"`
}

func (h *Handler) track(c *gin.Context) {
	var req trackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, created, err := Track(c.Request.Context(), h.Repo, h.Deriver, h.Expander, req.URL)
	if errors.Is(err, normalize.ErrInvalidURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}
	if err != nil {
		h.Log.Error("track failed", "url", req.URL, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "track failed"})
		return
	}
	if !created {
		c.JSON(http.StatusOK, h.view(p))
		return
	}

	// best effort: an empty snapshot still tracks the product
	if h.Enricher != nil {
		enriched, err := h.Enricher.Refresh(c.Request.Context(), p.ID, false)
		if err != nil {
			h.Log.Error("enrich on track failed", "product_id", p.ID, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enrichment persistence failed", "id": p.ID})
			return
		}
		if enriched != nil {
			p = enriched
		}
	}
	c.JSON(http.StatusCreated, h.view(p))
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		Q:      c.Query("q"),
		Sort:   c.DefaultQuery("sort", "popular"),
		Limit:  parseInt(c.Query("limit"), 25),
		Offset: parseInt(c.Query("offset"), 0),
	}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}
	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	views := make([]productView, 0, len(items))
	for i := range items {
		views = append(views, h.view(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  views,
	})
}

func (h *Handler) getByID(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.view(p))
}

func (h *Handler) priceHistory(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": p.ID, "price": p.Price, "priceHistory": p.PriceHistory})
}

func (h *Handler) watch(c *gin.Context) {
	n, err := h.Repo.IncrementWatch(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "watch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "watchCount": n})
}

func (h *Handler) refresh(c *gin.Context) {
	force := parseBool(c.Query("force"))
	if force && !auth.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "force refresh requires an admin token"})
		return
	}
	if h.Enricher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enrichment disabled"})
		return
	}

	p, err := h.Enricher.Refresh(c.Request.Context(), c.Param("id"), force)
	if errors.Is(err, ErrNotFound) || (err == nil && p == nil) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.Log.Error("refresh failed", "product_id", c.Param("id"), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, h.view(p))
}

func (h *Handler) redirect(c *gin.Context) {
	p, err := h.Repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil || p == nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if err := h.Repo.LogClick(c.Request.Context(), p.ID, c.GetHeader("Referer")); err != nil {
		h.Log.Warn("click log failed", "product_id", p.ID, "err", err)
	}
	c.Redirect(http.StatusFound, h.view(p).AffiliateURL)
}

func (h *Handler) load(c *gin.Context) (*models.Product, bool) {
	p, err := h.Repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return nil, false
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return p, true
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
