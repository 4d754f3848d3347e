package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/customeros/lenderinbox/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the last known state of every watched mailbox, ordered by key.
func Status(listener interfaces.ListenerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses := listener.Status()
		mailboxes := make([]interfaces.MailboxStatus, 0, len(statuses))
		for _, status := range statuses {
			mailboxes = append(mailboxes, status)
		}
		sort.Slice(mailboxes, func(i, j int) bool { return mailboxes[i].Key < mailboxes[j].Key })

		c.JSON(http.StatusOK, gin.H{
			"mailboxes": mailboxes,
		})
	}
}
