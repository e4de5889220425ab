package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGetSettings returns the stored settings merged over the defaults
func (s *APIServer) handleGetSettings(c *gin.Context) {
	current, err := s.settings.Get(c.Request.Context())
	if err != nil {
		fail(c, "get_settings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": current})
}

// handleSaveSettings merges the recognized fields of the body into the
// stored settings
func (s *APIServer) handleSaveSettings(c *gin.Context) {
	body, ok := bindBody(c, false)
	if !ok {
		return
	}

	saved, err := s.settings.Save(c.Request.Context(), body)
	if err != nil {
		fail(c, "save_settings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": saved})
}
