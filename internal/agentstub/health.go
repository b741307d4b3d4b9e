package agentstub

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const ServiceName = "parley-agentstub"

func (srv *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  ServiceName,
		"sessions": srv.sessions.Len(),
	})
}
