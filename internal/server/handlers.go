package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/internal/image"
	"github.com/manash/moodboard/internal/moodboard"
	"github.com/manash/moodboard/internal/region"
	"github.com/manash/moodboard/pkg/models"
)

type handler struct {
	ctx     context.Context
	board   *moodboard.Board
	saver   *image.Saver
	log     *logrus.Logger
	origins []string
}

type submitRequest struct {
	Prompt *string `json:"prompt"`
}

type inputRequest struct {
	Text string `json:"text"`
}

type panelRequest struct {
	Open *bool `json:"open" binding:"required"`
}

type modelRequest struct {
	Model string `json:"model" binding:"required"`
}

type reasoningRequest struct {
	Include *bool `json:"include" binding:"required"`
}

type modelInfo struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	SupportsEdit    bool   `json:"supports_edit"`
	SupportsThought bool   `json:"supports_reasoning"`
	Current         bool   `json:"current"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"versions": h.board.History().Len(),
	})
}

func (h *handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.Snapshot())
}

func (h *handler) listModels(c *gin.Context) {
	registry := h.board.Registry()
	current := h.board.Model()

	out := make([]modelInfo, 0)
	for _, name := range registry.List() {
		cap, _ := registry.Get(name)
		out = append(out, modelInfo{
			Name:            cap.Name,
			DisplayName:     cap.DisplayName,
			SupportsEdit:    cap.SupportsEdit,
			SupportsThought: cap.SupportsThought,
			Current:         name == current,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out, "default": registry.Default()})
}

// currentImage proxies the current image so browsers never talk to the backend directly.
func (h *handler) currentImage(c *gin.Context) {
	v := h.board.Snapshot()
	if v.Image == nil {
		respondError(c, http.StatusNotFound, "not_found", "no current image")
		return
	}
	if h.saver == nil {
		respondError(c, http.StatusNotImplemented, "not_configured", "image proxy is not configured")
		return
	}

	data, err := h.saver.Fetch(c.Request.Context(), *v.Image)
	if err != nil {
		h.log.WithError(err).Warn("image fetch failed")
		respondError(c, http.StatusBadGateway, "backend_error", err.Error())
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (h *handler) setInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := h.board.SetInput(req.Text); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.board.Snapshot())
}

// submit sends the given prompt, or the pending input when prompt is absent.
func (h *handler) submit(c *gin.Context) {
	var req submitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	text := h.board.Input()
	if req.Prompt != nil {
		text = *req.Prompt
	}

	// A client that disconnects must not abort a backend call already issued.
	ctx := context.WithoutCancel(c.Request.Context())
	if _, err := h.board.Submit(ctx, text); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.board.Snapshot())
}

// setRegion accepts {x1,y1,x2,y2} in image pixels, or null to clear.
func (h *handler) setRegion(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var reg *models.Region
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var r models.Region
		if err := json.Unmarshal(trimmed, &r); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		n := models.NewRegion(models.Point{X: r.X1, Y: r.Y1}, models.Point{X: r.X2, Y: r.Y2})
		reg = &n
	}

	if err := h.board.SetRegion(reg); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.board.Snapshot())
}

// overlay returns the outline of the committed region for the caller's canvas
// size. The outline is null when no region is set.
func (h *handler) overlay(c *gin.Context) {
	var vp region.Viewport
	if err := c.ShouldBindJSON(&vp); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"outline": region.Overlay(h.board.Region(), vp)})
}

func (h *handler) selectVersion(c *gin.Context) {
	id := c.Param("id")

	var err error
	if strings.EqualFold(id, "active") {
		_, err = h.board.SelectActive()
	} else {
		_, err = h.board.SelectVersion(id)
	}
	if err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.board.Snapshot())
}

func (h *handler) setPanel(c *gin.Context) {
	var req panelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.board.SetHistoryOpen(*req.Open)
	c.JSON(http.StatusOK, h.board.Snapshot())
}

func (h *handler) toggleAutoPlay(c *gin.Context) {
	playing := h.board.ToggleAutoPlay()
	if !playing && h.board.History().Len() == 0 {
		respondError(c, http.StatusBadRequest, "validation_error", "no versions to play")
		return
	}
	c.JSON(http.StatusOK, h.board.Snapshot())
}

func (h *handler) setModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := h.board.SetModel(req.Model); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.board.Snapshot())
}

func (h *handler) setReasoning(c *gin.Context) {
	var req reasoningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.board.SetIncludeReasoning(*req.Include)
	c.JSON(http.StatusOK, h.board.Snapshot())
}
