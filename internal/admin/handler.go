// Package admin exposes the operator-only routes: batch backfill and
// price-history repair.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pricewatch/internal/auth"
	"pricewatch/internal/batch"
	"pricewatch/internal/history"
	"pricewatch/internal/products"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/utils"
)

type Handler struct {
	Repo     *products.Repo
	Runner   *batch.Runner
	Tokens   auth.TokenService
	Defaults utils.BatchConfig
	Log      *logger.Logger
}

func NewHandler(repo *products.Repo, runner *batch.Runner, tokens auth.TokenService, defaults utils.BatchConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{Repo: repo, Runner: runner, Tokens: tokens, Defaults: defaults, Log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(auth.AdminMiddleware(h.Tokens))
	rg.POST("/backfill", h.backfill)          // POST /admin/backfill
	rg.POST("/products/:id/repair", h.repair) // POST /admin/products/:id/repair
}

type backfillReq struct {
	Limit  int    `json:"limit"`
	Apply  bool   `json:"apply"`
	Force  bool   `json:"force"`
	Select string `json:"select"`
}

func (h *Handler) backfill(c *gin.Context) {
	req := backfillReq{Select: batch.MissingMetadata.Name}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if req.Select == "" {
		req.Select = batch.MissingMetadata.Name
	}
	sel, err := batch.SelectorByName(req.Select)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 || req.Limit > h.Defaults.Size {
		req.Limit = h.Defaults.Size
	}

	claims := auth.MustGetClaims(c)
	h.Log.Info("admin backfill", "by", claims.Subject, "select", sel.Name, "limit", req.Limit, "apply", req.Apply, "force", req.Force)

	rep, err := h.Runner.Run(c.Request.Context(), sel, batch.Options{
		Limit:       req.Limit,
		Apply:       req.Apply,
		Force:       req.Force,
		DelayMin:    h.Defaults.DelayMin,
		DelayJitter: h.Defaults.DelayJitter,
	})
	if err != nil {
		h.Log.Error("admin backfill aborted", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backfill aborted", "report": rep})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// repair rewrites one product's history; ?apply=true persists, otherwise the
// planned result is only reported.
func (h *Handler) repair(c *gin.Context) {
	p, err := h.Repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	rep := history.Repair(*p)
	apply := c.Query("apply") == "true" || c.Query("apply") == "1"
	if apply && rep.Changed {
		if err := h.Repo.ReplaceHistory(c.Request.Context(), p.ID, rep.History, rep.Price); err != nil {
			h.Log.Error("history repair failed", "product_id", p.ID, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "repair failed"})
			return
		}
		h.Log.Info("history repaired", "product_id", p.ID, "before", rep.Before, "after", rep.After)
	}
	c.JSON(http.StatusOK, gin.H{"applied": apply && rep.Changed, "report": rep})
}
