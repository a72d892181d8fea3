package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const ssePollInterval = 500 * time.Millisecond

// streamEventsHandler implements the SSE event stream (spec.md §6):
// Last-Event-ID resumption, ?once=1 test hook, ≤500ms tail poll cadence.
func (s *Server) streamEventsHandler(c *gin.Context) {
	runID := c.Param("id")

	lastSeq := int64(0)
	if header := c.GetHeader("Last-Event-ID"); header != "" {
		if v, err := strconv.ParseInt(header, 10, 64); err == nil {
			lastSeq = v
		}
	}
	if q := c.Query("last_event_id"); q != "" {
		if v, err := strconv.ParseInt(q, 10, 64); err == nil {
			lastSeq = v
		}
	}
	once := c.Query("once") == "1"

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer

	writeBatch := func() (bool, error) {
		events, err := s.store.ListEventsSince(c.Request.Context(), runID, lastSeq)
		if err != nil {
			return false, err
		}
		for _, ev := range events {
			payload, _ := json.Marshal(ev.Payload)
			fmt.Fprintf(writer, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, payload)
			lastSeq = ev.Seq
		}
		writer.Flush()
		return len(events) > 0, nil
	}

	if once {
		if _, err := writeBatch(); err != nil {
			s.log.Error("sse once batch failed", "run_id", runID, "error", err)
		}
		return
	}

	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if _, err := writeBatch(); err != nil {
				s.log.Error("sse tail batch failed", "run_id", runID, "error", err)
				return
			}
		}
	}
}

// downloadEventsHandler streams up to 5000 events as application/x-ndjson.
func (s *Server) downloadEventsHandler(c *gin.Context) {
	events, err := s.store.ListEvents(c.Request.Context(), c.Param("id"), 5000)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "application/x-ndjson")
	for _, ev := range events {
		line, _ := json.Marshal(ev)
		c.Writer.Write(line)
		c.Writer.Write([]byte("\n"))
	}
}
