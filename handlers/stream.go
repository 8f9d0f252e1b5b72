package handlers

import (
	"log"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"go-attentionmap/hub"
	"go-attentionmap/stream"
	"go-attentionmap/types"
)

// Publisher hands committed mutations to the distribution hub.
type Publisher interface {
	Publish(n types.ChangeNotification)
}

// StreamEventsHandler serves the SSE stream. Each connection gets its own
// session and subscription; clients are expected to fetch current state via
// the list endpoints before connecting, and again whenever they receive a
// resync frame.
func StreamEventsHandler(c *gin.Context, h *hub.Hub, keepAlive time.Duration) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	session := stream.NewSession(h, &sseTransport{c: c}, keepAlive)
	if err := session.Run(c.Request.Context()); err != nil {
		// A dead client connection; only this session is torn down.
		log.Printf("stream session ended: %v", err)
	}
}

// sseTransport writes one SSE frame per notification.
type sseTransport struct {
	c *gin.Context
}

func (t *sseTransport) Send(event string, data any) error {
	if err := sse.Encode(t.c.Writer, sse.Event{Event: event, Data: data}); err != nil {
		return err
	}
	t.c.Writer.Flush()
	return nil
}
