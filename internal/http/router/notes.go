package router

import (
	"github.com/ashtonliu88/diff-digest/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func NotesRouter(router *gin.RouterGroup, handler *handler.NotesHandler) {
	router.POST("/generate-notes", handler.Generate)
}

func DiffsRouter(router *gin.RouterGroup, handler *handler.DiffsHandler) {
	router.GET("/sample-diffs", handler.List)
	router.GET("/sample-diffs/:id", handler.Get)
}
