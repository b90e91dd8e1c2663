package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/wellnest-app/wellnest/libs/auth"
	"github.com/wellnest-app/wellnest/libs/outbox"
	"github.com/wellnest-app/wellnest/services/checkout-service/internal/storage"
)

// Session packages sold through checkout. Amounts are cents.
var packagePrices = map[string]int64{
	"single_session": 6000,
	"pack_5":         27500,
	"pack_10":        50000,
}

type Handler struct {
	repo                   *storage.Repository
	outboxRepo             *outbox.Repository
	logger                 *slog.Logger
	stripeSecretKey        string
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	checkoutSuccessURL     string
	checkoutCancelURL      string
	currency               string
}

type Config struct {
	StripeSecretKey               string
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	CheckoutSuccessURL            string
	CheckoutCancelURL             string
	Currency                      string
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	currency := strings.TrimSpace(strings.ToLower(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Handler{
		repo:                   repo,
		outboxRepo:             outboxRepo,
		logger:                 logger,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		checkoutSuccessURL:     strings.TrimSpace(cfg.CheckoutSuccessURL),
		checkoutCancelURL:      strings.TrimSpace(cfg.CheckoutCancelURL),
		currency:               currency,
	}
}

type checkoutRequest struct {
	Package       string `json:"package"`
	AppointmentID string `json:"appointment_id,omitempty"`
	SuccessURL    string `json:"success_url,omitempty"`
	CancelURL     string `json:"cancel_url,omitempty"`
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if h.stripeSecretKey == "" {
		http.Error(w, "stripe checkout not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	pkg := strings.TrimSpace(strings.ToLower(req.Package))
	amount, ok := packagePrices[pkg]
	if !ok {
		http.Error(w, "unsupported package", http.StatusBadRequest)
		return
	}

	userID := strings.TrimSpace(r.Header.Get(auth.HeaderUserID))
	if userID == "" {
		http.Error(w, "missing user context", http.StatusBadRequest)
		return
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = h.checkoutSuccessURL
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = h.checkoutCancelURL
	}
	if successURL == "" || cancelURL == "" {
		http.Error(w, "success_url and cancel_url are required (or configure default URLs)", http.StatusBadRequest)
		return
	}

	orderID := uuid.NewString()

	stripe.Key = h.stripeSecretKey
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(orderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(h.currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Wellnest " + pkg),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"order_id": orderID,
			"user_id":  userID,
			"package":  pkg,
		},
	}
	if idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key")); idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err)
		http.Error(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.CreateOrder(ctx, tx, storage.Order{
		ID:              orderID,
		UserID:          userID,
		AppointmentID:   strings.TrimSpace(req.AppointmentID),
		PackageCode:     pkg,
		AmountCents:     amount,
		Currency:        h.currency,
		Status:          "created",
		StripeSessionID: sess.ID,
		URL:             sess.URL,
	}); err != nil {
		h.logger.Error("order persist failed", "err", err, "order_id", orderID)
		http.Error(w, "failed to persist order", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":   orderID,
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.repo.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load order", http.StatusInternalServerError)
		return
	}

	// Owners see their own orders; staff roles see everything.
	callerID := strings.TrimSpace(r.Header.Get(auth.HeaderUserID))
	role := strings.TrimSpace(r.Header.Get(auth.HeaderRole))
	if role == "client" && callerID != order.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	resp := map[string]any{
		"order_id":     order.ID,
		"user_id":      order.UserID,
		"package":      order.PackageCode,
		"amount_cents": order.AmountCents,
		"currency":     order.Currency,
		"status":       order.Status,
		"created_at":   order.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   order.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if order.AppointmentID != "" {
		resp["appointment_id"] = order.AppointmentID
	}
	if order.PaidAt != nil {
		resp["paid_at"] = order.PaidAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
