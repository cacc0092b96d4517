package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/services"
)

const (
	maxWebhookBody   = int64(65536)
	webhookTolerance = 5 * time.Minute
)

type clerkWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkUserData struct {
	ID string `json:"id"`
}

// WebhookHandler receives Clerk user lifecycle events.
type WebhookHandler struct {
	gamificationService *services.GamificationService
	secret              string
	now                 func() time.Time
	log                 *logger.Logger
}

func NewWebhookHandler(gamificationService *services.GamificationService, secret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		gamificationService: gamificationService,
		secret:              secret,
		now:                 time.Now,
		log:                 log.With("handler", "WebhookHandler"),
	}
}

// POST /webhooks/clerk
func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r.Header, body) {
		h.log.Warn("invalid webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event clerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Error parsing webhook", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	switch event.Type {
	case "user.created":
		var u clerkUserData
		if err := json.Unmarshal(event.Data, &u); err != nil || u.ID == "" {
			http.Error(w, "Error parsing user data", http.StatusBadRequest)
			return
		}
		if _, err := h.gamificationService.EnsureStats(ctx, u.ID); err != nil {
			h.log.Error("failed to create stats for new user", "user_id", u.ID, "error", err)
			http.Error(w, "Error processing webhook", http.StatusInternalServerError)
			return
		}
		h.log.Info("created stats for new user", "user_id", u.ID)
	default:
		h.log.Debug("unhandled webhook event type", "type", event.Type)
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// verifySignature checks the svix headers Clerk signs webhooks with. An
// empty secret disables verification for local development.
func (h *WebhookHandler) verifySignature(header http.Header, body []byte) bool {
	if h.secret == "" {
		return true
	}

	svixID := header.Get("svix-id")
	svixTimestamp := header.Get("svix-timestamp")
	svixSignature := header.Get("svix-signature")
	if svixID == "" || svixTimestamp == "" || svixSignature == "" {
		return false
	}

	ts, err := strconv.ParseInt(svixTimestamp, 10, 64)
	if err != nil {
		return false
	}
	if d := h.now().Sub(time.Unix(ts, 0)); d > webhookTolerance || d < -webhookTolerance {
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(h.secret, "whsec_"))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(svixID + "." + svixTimestamp + "." + string(body)))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// the header may carry several space separated "v1,<sig>" entries
	for _, part := range strings.Fields(svixSignature) {
		version, sig, ok := strings.Cut(part, ",")
		if ok && version == "v1" && hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}
