// Package handlers provides the HTTP API handlers for the bottle service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wuyan1003/driftbottle/internal/bottle"
)

// BottlesHandler exposes the bottle store over the wire API the cloud
// client consumes, so the service can be self-hosted.
type BottlesHandler struct {
	store  bottle.Store
	logger *slog.Logger
}

// NewBottlesHandler creates the bottles handler.
func NewBottlesHandler(log *slog.Logger, store bottle.Store) *BottlesHandler {
	return &BottlesHandler{
		store:  store,
		logger: log.With(slog.String("handler", "bottles")),
	}
}

// Register mounts the bottle routes on the Echo instance.
func (h *BottlesHandler) Register(e *echo.Echo) {
	e.POST("/api/bottles", h.Add)
	e.GET("/api/bottles/random", h.PickRandom)
	e.POST("/api/bottles/reset", h.Reset)
	e.GET("/api/bottles/count", h.Counts)
	e.GET("/api/bottles/picked", h.ListPicked)
	e.GET("/api/bottles/:id", h.GetPicked)
}

// AddRequest is the body for POST /api/bottles.
type AddRequest struct {
	Content  string         `json:"content"`
	Images   []bottle.Image `json:"images"`
	Sender   string         `json:"sender"`
	SenderID string         `json:"sender_id"`
}

// AddResponse carries the ID assigned to a new bottle.
type AddResponse struct {
	ID int64 `json:"id"`
}

// Add stores a new bottle and returns its ID.
func (h *BottlesHandler) Add(c echo.Context) error {
	var req AddRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := h.store.Add(c.Request().Context(), bottle.Bottle{
		Content:  req.Content,
		Images:   req.Images,
		Sender:   req.Sender,
		SenderID: req.SenderID,
	})
	if err != nil {
		if errors.Is(err, bottle.ErrEmptyBottle) {
			return echo.NewHTTPError(http.StatusBadRequest, "bottle has no content")
		}
		h.logger.Error("add bottle failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, AddResponse{ID: id})
}

// PickRandom picks a random active bottle and returns it; 404 when the
// active pool is empty.
func (h *BottlesHandler) PickRandom(c echo.Context) error {
	b, err := h.store.PickRandom(c.Request().Context())
	if err != nil {
		if errors.Is(err, bottle.ErrNoBottles) {
			return echo.NewHTTPError(http.StatusNotFound, "no bottles available")
		}
		h.logger.Error("pick bottle failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

// ResetResponse reports how many picked bottles were set adrift again.
type ResetResponse struct {
	Restored int `json:"restored"`
}

// Reset moves every picked bottle back into the active pool.
func (h *BottlesHandler) Reset(c echo.Context) error {
	restored, err := h.store.Reset(c.Request().Context())
	if err != nil {
		h.logger.Error("reset bottles failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ResetResponse{Restored: restored})
}

// CountsResponse carries the active/picked partition sizes.
type CountsResponse struct {
	Active int `json:"active"`
	Picked int `json:"picked"`
}

// Counts returns the active and picked bottle counts.
func (h *BottlesHandler) Counts(c echo.Context) error {
	active, picked, err := h.store.Counts(c.Request().Context())
	if err != nil {
		h.logger.Error("count bottles failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, CountsResponse{Active: active, Picked: picked})
}

// ListResponse wraps a bottle list.
type ListResponse struct {
	Items []bottle.Bottle `json:"items"`
}

// ListPicked returns all picked bottles, newest first.
func (h *BottlesHandler) ListPicked(c echo.Context) error {
	items, err := h.store.ListPicked(c.Request().Context())
	if err != nil {
		h.logger.Error("list picked bottles failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []bottle.Bottle{}
	}
	return c.JSON(http.StatusOK, ListResponse{Items: items})
}

// GetPicked returns one picked bottle by ID; 404 when unknown.
func (h *BottlesHandler) GetPicked(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bottle id")
	}
	b, err := h.store.GetPicked(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, bottle.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bottle not found")
		}
		h.logger.Error("get picked bottle failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, b)
}
