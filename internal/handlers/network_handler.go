package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rainbow-register/internal/services"
)

// NetworkHandler serves the read-only analytics views
type NetworkHandler struct {
	network *services.NetworkService
	geo     *services.GeoService
	logger  *zap.Logger
}

func NewNetworkHandler(network *services.NetworkService, geo *services.GeoService, logger *zap.Logger) *NetworkHandler {
	return &NetworkHandler{network: network, geo: geo, logger: logger}
}

// GetTree returns the whole invitation forest with statistics
func (h *NetworkHandler) GetTree(c *gin.Context) {
	tree, err := h.network.Tree(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    tree,
	})
}

// GetUserNetwork returns one profile's inviter and invitees
func (h *NetworkHandler) GetUserNetwork(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	network, err := h.network.UserNetwork(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    network,
	})
}

// GetMapUsers groups profiles by work city
func (h *NetworkHandler) GetMapUsers(c *gin.Context) {
	dist, err := h.geo.CityDistribution(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dist,
	})
}
