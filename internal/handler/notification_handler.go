package handler

import (
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/aditya/haggle/internal/errors"
	"github.com/aditya/haggle/internal/middleware"
	"github.com/aditya/haggle/internal/notify"
	"github.com/aditya/haggle/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const defaultHeartbeat = 30 * time.Second

// NotificationHandler streams a user's offer notifications as server-sent
// events. Every replica subscribes to the user's Redis channel, so the
// stream works no matter which instance ran the transition.
type NotificationHandler struct {
	redis     *redis.Client
	heartbeat time.Duration
}

func NewNotificationHandler(redisClient *redis.Client) *NotificationHandler {
	return &NotificationHandler{
		redis:     redisClient,
		heartbeat: defaultHeartbeat,
	}
}

func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users/me/notifications", h.StreamNotifications)
}

// GET /v1/users/me/notifications
func (h *NotificationHandler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.Error(w, apperrors.Unauthenticated("missing caller"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.InternalError(w, "streaming not supported")
		return
	}

	ctx := r.Context()
	pubsub := h.redis.Subscribe(ctx, notify.NotificationChannel(userID))
	defer pubsub.Close()

	// Wait for the subscription so nothing published after the 200 is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("notification subscribe failed")
		utils.Error(w, apperrors.Busy())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messages := pubsub.Channel()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", msg.Payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: heartbeat\ndata: {\"time\": \"%s\"}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}
