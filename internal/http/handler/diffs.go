package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashtonliu88/diff-digest/internal/http/dto"
	"github.com/ashtonliu88/diff-digest/internal/service/diffsource"
	"github.com/gin-gonic/gin"
)

type DiffsHandler struct {
	diffSource diffsource.DiffSource
}

func NewDiffsHandler(diffSource diffsource.DiffSource) *DiffsHandler {
	return &DiffsHandler{diffSource: diffSource}
}

func (h *DiffsHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	if !h.available(c) {
		return
	}

	var req dto.ListDiffsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.diffSource.ListMergedDiffs(ctx, diffsource.ListParams{
		Owner:   req.Owner,
		Repo:    req.Repo,
		Page:    req.Page,
		PerPage: req.PerPage,
	})
	if err != nil {
		if errors.Is(err, diffsource.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to list diffs", "error", err, "owner", req.Owner, "repo", req.Repo)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch diffs"})
		return
	}

	c.JSON(http.StatusOK, dto.NewListDiffsResponse(page))
}

func (h *DiffsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	if !h.available(c) {
		return
	}

	var req dto.GetDiffRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")

	diff, err := h.diffSource.GetMergedDiff(ctx, req.Owner, req.Repo, id)
	if err != nil {
		if errors.Is(err, diffsource.ErrDiffNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pull request not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get diff", "error", err, "owner", req.Owner, "repo", req.Repo, "id", id)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch diff"})
		return
	}

	c.JSON(http.StatusOK, dto.NewDiffResponse(diff))
}

func (h *DiffsHandler) available(c *gin.Context) bool {
	if h.diffSource == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "diff source is not configured"})
		return false
	}
	return true
}
