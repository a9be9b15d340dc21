package http

import (
	"net/http"

	"github.com/dkeye/spatialvoice/internal/app"
	"github.com/gin-gonic/gin"
)

type LobbiesResponse struct {
	Lobbies []app.LobbyInfo `json:"lobbies"`
}

func lobbiesHandler(lobbies *app.LobbyManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, LobbiesResponse{Lobbies: lobbies.List()})
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
