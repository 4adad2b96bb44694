package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beacon/internal/core"
	"github.com/dkeye/Beacon/internal/domain"
)

// RoomHandlers is the management surface over the room registry:
// rooms, join tokens, forced removal, produce state.
type RoomHandlers struct {
	Rooms *core.RoomManager
}

type createRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *RoomHandlers) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	room, err := h.Rooms.Create(domain.RoomName(req.Name))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": room.ID(), "name": room.Name()})
}

func (h *RoomHandlers) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.Rooms.List())
}

func (h *RoomHandlers) Delete(c *gin.Context) {
	if !h.Rooms.Delete(domain.RoomID(c.Param("id"))) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type joinRoomRequest struct {
	Username string `json:"username" binding:"required"`
}

// Join issues a single-use token the client presents in its
// authenticate command over the signaling socket.
func (h *RoomHandlers) Join(c *gin.Context) {
	room, ok := h.Rooms.Get(domain.RoomID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid username"})
		return
	}
	token, err := room.Users().Issue(req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Kick removes a user; their signaling connection observes its own
// UserLeft broadcast and closes with the kicked code.
func (h *RoomHandlers) Kick(c *gin.Context) {
	room, ok := h.Rooms.Get(domain.RoomID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	uid := domain.UserID(c.Param("uid"))
	if !room.Users().Contains(uid) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	room.Users().Remove(uid)
	c.Status(http.StatusNoContent)
}

type produceRequest struct {
	Type domain.ProduceType `json:"type" binding:"required"`
}

func (h *RoomHandlers) StartProduce(c *gin.Context) {
	room, ok := h.Rooms.Get(domain.RoomID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	var req produceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid type"})
		return
	}
	if err := room.Users().StartProduce(domain.UserID(c.Param("uid")), req.Type); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) StopProduce(c *gin.Context) {
	room, ok := h.Rooms.Get(domain.RoomID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err := room.Users().StopProduce(domain.UserID(c.Param("uid")), domain.ProduceType(c.Param("type"))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
