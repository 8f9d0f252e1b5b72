package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-attentionmap/db"
	"go-attentionmap/gamification"
)

func GetProfileHandler(c *gin.Context, store db.Store) {
	profile, err := store.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		log.Printf("get profile %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func ListBadgesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"badges": gamification.Badges})
}
