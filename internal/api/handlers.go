package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"newsfeed/internal/feed"
	"newsfeed/internal/model"
	"newsfeed/internal/news"
	"newsfeed/internal/scheduler"
)

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listSources(c *gin.Context) {
	srcs, err := h.svc.ListSources(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": lo.Map(srcs, func(s model.Source, _ int) sourceResponse { return toSource(s) })})
}

func (h *Handler) aggregate(c *gin.Context) {
	res := h.svc.AggregateNews(c.Request.Context())
	status := http.StatusOK
	if lo.Contains(res.Errors, scheduler.ErrInProgress) {
		status = http.StatusConflict
	}
	c.JSON(status, toAggregate(res))
}

func (h *Handler) searchArticles(c *gin.Context) {
	f := feed.SearchFilter{Query: c.Query("q")}
	var err error

	f.Categories = splitList(c.QueryArray("category"))
	for _, raw := range splitList(c.QueryArray("source")) {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			badRequest(c, fmt.Sprintf("invalid source id %q", raw))
			return
		}
		f.SourceIDs = append(f.SourceIDs, id)
	}
	if raw := c.Query("min_relevance"); raw != "" {
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			badRequest(c, fmt.Sprintf("invalid min_relevance %q", raw))
			return
		}
		f.MinRelevance = &v
	}
	if raw := c.Query("from"); raw != "" {
		if f.From, err = dateparse.ParseAny(raw); err != nil {
			badRequest(c, fmt.Sprintf("invalid from %q", raw))
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if f.To, err = dateparse.ParseAny(raw); err != nil {
			badRequest(c, fmt.Sprintf("invalid to %q", raw))
			return
		}
	}
	if f.Limit, f.Offset, err = pagination(c); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.svc.SearchArticles(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, searchResponse{Articles: toArticles(res.Articles), TotalCount: res.TotalCount})
}

func (h *Handler) getPreferences(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": toPreferences(h.svc.GetPreferences(c.Request.Context(), userID))})
}

func (h *Handler) updatePreferences(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.svc.UpdatePreferences(c.Request.Context(), userID, req.patch())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": toPreferences(p)})
}

func (h *Handler) getFeed(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	limit, offset, err := pagination(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	f, err := h.svc.GetPersonalizedFeed(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toFeed(f))
}

func (h *Handler) recordInteraction(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	in, err := h.svc.RecordInteraction(c.Request.Context(), userID, req.ArticleID, model.Action(req.Action), news.InteractionOptions{
		ReadingTimeSeconds: req.ReadingTimeSeconds,
		ScrollDepth:        req.ScrollDepth,
		Feedback:           req.Feedback,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toInteraction(in))
}

func (h *Handler) saveArticle(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sa, err := h.svc.SaveArticle(c.Request.Context(), userID, req.ArticleID, news.SaveOptions{
		Folder:     req.Folder,
		Tags:       req.Tags,
		Notes:      req.Notes,
		Priority:   req.Priority,
		ReminderAt: req.ReminderAt,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSaved(*sa))
}

func (h *Handler) listSaved(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	saved := h.svc.GetSavedArticles(c.Request.Context(), userID, c.Query("folder"))
	c.JSON(http.StatusOK, gin.H{"saved": lo.Map(saved, func(sa model.SavedArticle, _ int) savedResponse { return toSaved(sa) })})
}

func (h *Handler) generateDigest(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	generate := h.svc.GenerateDailyDigest
	if strings.HasSuffix(c.FullPath(), "/weekly") {
		generate = h.svc.GenerateWeeklyDigest
	}
	d, err := generate(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if d == nil {
		c.JSON(http.StatusOK, gin.H{"digest": nil, "message": "digest already exists for this period"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"digest": toDigest(d)})
}

func (h *Handler) getDigest(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	d := h.svc.GetDigest(c.Request.Context(), userID, id)
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "digest not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"digest": toDigest(d)})
}

func (h *Handler) markDigestRead(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	changed, err := h.svc.MarkDigestAsRead(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// fail writes the response for a service error.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, news.ErrInvalidInput):
		badRequest(c, err.Error())
	case errors.Is(err, news.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func userParam(c *gin.Context) (int64, bool) {
	return idParam(c, "user")
}

func idParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (limit, offset int, err error) {
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
	}
	return limit, offset, nil
}

// splitList flattens repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
