package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/go-github/v71/github"
	"github.com/google/uuid"
	"github.com/roasbeef/pulljoy/internal/event"
	"github.com/roasbeef/pulljoy/internal/gate"
	"github.com/roasbeef/pulljoy/internal/metrics"
)

// webhookResponse is the JSON body of every webhook reply.
type webhookResponse struct {
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleWebhook verifies, decodes and processes one delivery. It replies
// only after processing so that the sender sees failures.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	deliveryID := github.DeliveryID(r)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	ctx := gate.WithDeliveryID(r.Context(), deliveryID)

	eventType := github.WebHookType(r)

	payload, err := github.ValidatePayload(r, []byte(s.cfg.WebhookSecret))
	if err != nil {
		log.WarnS(ctx, "Rejecting webhook delivery", err,
			"delivery_id", deliveryID, "event_type", eventType)

		writeJSON(w, http.StatusBadRequest, webhookResponse{
			Message: "invalid webhook payload",
		})

		return
	}

	if event.Kind(eventType) == event.KindPing {
		log.InfoS(ctx, "Received webhook ping",
			"delivery_id", deliveryID)

		s.observe(eventType, metrics.ResultProcessed, 0)
		writeJSON(w, http.StatusOK, webhookResponse{Processed: true})

		return
	}

	ev, err := event.Decode(eventType, payload)
	switch {
	case errors.Is(err, event.ErrUnsupportedEvent):
		log.DebugS(ctx, "Ignoring unsupported event",
			"delivery_id", deliveryID, "event_type", eventType)

		s.observe(eventType, metrics.ResultUnsupported, 0)
		writeJSON(w, http.StatusUnprocessableEntity, webhookResponse{
			Message: "Unsupported event type " + eventType,
		})

		return

	case err != nil:
		log.WarnS(ctx, "Unable to decode webhook payload", err,
			"delivery_id", deliveryID, "event_type", eventType)

		writeJSON(w, http.StatusBadRequest, webhookResponse{
			Message: "malformed payload",
		})

		return
	}

	if s.cfg.Deliveries != nil {
		seen, err := s.cfg.Deliveries.Seen(ctx, deliveryID)
		if err != nil {
			log.WarnS(ctx, "Unable to check delivery log", err,
				"delivery_id", deliveryID)
		}
		if seen {
			log.InfoS(ctx, "Skipping already processed delivery",
				"delivery_id", deliveryID)

			s.observe(eventType, metrics.ResultDuplicate, 0)
			writeJSON(w, http.StatusOK, webhookResponse{
				Processed: true,
				Message:   "already processed",
			})

			return
		}
	}

	start := time.Now()
	if err := s.process(ctx, ev); err != nil {
		s.observe(eventType, metrics.ResultFailed, time.Since(start))
		writeJSON(w, http.StatusInternalServerError, webhookResponse{
			Message: "error processing event",
		})

		return
	}
	s.observe(eventType, metrics.ResultProcessed, time.Since(start))

	if s.cfg.Deliveries != nil {
		if err := s.cfg.Deliveries.Remember(ctx, deliveryID); err != nil {
			log.WarnS(ctx, "Unable to record delivery", err,
				"delivery_id", deliveryID)
		}
	}

	writeJSON(w, http.StatusOK, webhookResponse{Processed: true})
}

// process hands the event to the dispatcher. A check suite that ran for
// several pull requests is split so each pull request is processed on its
// own ordering key.
func (s *Server) process(ctx context.Context, ev event.Event) error {
	events := []event.Event{ev}
	if cs, ok := ev.(*event.CheckSuiteEvent); ok &&
		len(cs.CheckSuite.PullRequests) > 1 {

		events = events[:0]
		for _, split := range cs.SplitByPullRequest() {
			events = append(events, split)
		}
	}

	var errs []error
	for _, e := range events {
		receipt, err := s.cfg.Events.Ask(ctx, e).Unpack()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		log.DebugS(ctx, "Processed event", "kind", e.Kind(),
			"partition", receipt.Partition,
			"elapsed", receipt.Elapsed)
	}

	return errors.Join(errs...)
}

func (s *Server) observe(kind, result string, elapsed time.Duration) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveEvent(kind, result, elapsed)
	}
}
