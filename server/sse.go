package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/deckmesh/core"
)

// handleEvents streams a deck's event history and live updates as SSE.
//
// Protocol: subscribe to the broker first, then backfill from the durable
// log starting after the `from` watermark, then forward live events whose
// version exceeds the watermark. The overlap between backfill and the
// subscription buffer is de-duplicated by version, so the client sees the
// gapless sequence regardless of timing. Heartbeat frames (version 0) are
// emitted on idle intervals and never advance the watermark.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deckID := chi.URLParam(r, "deck_id")

	from, err := parseFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.store.Deck(ctx, deckID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "deck not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribing before the backfill read closes the window in which an
	// event could land after the read but before the subscription.
	sub := s.orch.Broker().Subscribe(deckID)
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	watermark := from
	backfill, err := s.store.ReadFrom(ctx, deckID, from)
	if err != nil {
		s.logger.Error("event backfill failed deck=%s err=%v", deckID, err)
		return
	}
	terminal := false
	for _, ev := range backfill {
		if err := writeSSE(w, ev); err != nil {
			return
		}
		watermark = ev.Version
		terminal = terminal || terminalEvent(ev.Type)
	}
	flusher.Flush()
	if terminal {
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Version <= watermark {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			watermark = ev.Version
			flusher.Flush()
			if terminalEvent(ev.Type) {
				return
			}
		case <-ticker.C:
			if err := writeSSE(w, core.NewHeartbeat(deckID)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// parseFrom reads the replay watermark from the `from` query parameter or,
// on browser reconnects, the Last-Event-ID header.
func parseFrom(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("from")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	from, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || from < 0 {
		return 0, fmt.Errorf("invalid from watermark %q", raw)
	}
	return from, nil
}

func writeSSE(w io.Writer, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Version, ev.Type, data)
	return err
}

func terminalEvent(typ core.EventType) bool {
	return typ == core.EventDeckCompleted || typ == core.EventDeckFailed || typ == core.EventDeckCancelled
}
