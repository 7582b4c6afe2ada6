package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/sheetscan/internal/service/document"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
}

func NewHandlers(
	pipeline Pipeline,
	documentService document.DocumentProcessor,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(pipeline, documentService, logger),
	}
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
