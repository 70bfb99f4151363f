package router

import (
	"github.com/ashtonliu88/diff-digest/internal/http/handler"
	"github.com/ashtonliu88/diff-digest/internal/service"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, services *service.Services) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		notesHandler := handler.NewNotesHandler(services.Notes())
		NotesRouter(api, notesHandler)

		diffsHandler := handler.NewDiffsHandler(services.Diffs())
		DiffsRouter(api, diffsHandler)
	}
}
