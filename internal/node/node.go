package node

import "github.com/gin-gonic/gin"

// Node is a process that serves an HTTP surface next to its instrument link.
// The gateway status server implements it; NodeID and Kind identify the
// gateway in /health and in request metrics.
type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
}
