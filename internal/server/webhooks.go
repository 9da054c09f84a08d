package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandlePaystackWebhook ingests one provider delivery. Anything the service
// classified (processed, ignored, contradiction, redelivery) is acknowledged
// with 200 so the provider stops retrying; only transient failures surface as
// errors.
func (s *Server) HandlePaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	row, err := s.webhookSvc.HandlePaystack(c.Request.Context(), c.GetHeader("x-paystack-signature"), body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(row.Status)})
}
