package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/auth"
	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/svix"
	"github.com/vedant2606-dev/bg-removal-service/internal/models"
	service "github.com/vedant2606-dev/bg-removal-service/internal/services"
	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

const maxImageSize = 10 << 20 // 10 MiB upload cap

type Handler struct {
	ledger   service.LedgerService
	images   service.ImageService
	verifier *svix.Verifier
}

func NewHandler(ledger service.LedgerService, images service.ImageService, verifier *svix.Verifier) *Handler {
	return &Handler{ledger: ledger, images: images, verifier: verifier}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/api/user/webhooks", h.IdentityWebhook).Methods("POST")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/api/user/credits", h.GetCredits).Methods("GET")
	r.HandleFunc("/api/user/history", h.GetTransactionHistory).Methods("GET")
	r.HandleFunc("/api/user/pay-razor", h.CreateOrder).Methods("POST")
	r.HandleFunc("/api/user/verify-razor", h.VerifyPayment).Methods("POST")
	r.HandleFunc("/api/image/remove-bg", h.RemoveBackground).Methods("POST")
}

// IdentityWebhook syncs accounts from the identity provider. Deliveries are
// signature-checked and deduplicated by message id; a replay returns 200 so
// the provider stops retrying.
func (h *Handler) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	msgID := r.Header.Get("svix-id")
	if err := h.verifier.Verify(
		msgID,
		r.Header.Get("svix-timestamp"),
		r.Header.Get("svix-signature"),
		payload,
	); err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			ID             string `json:"id"`
			FirstName      string `json:"first_name"`
			LastName       string `json:"last_name"`
			ImageURL       string `json:"image_url"`
			EmailAddresses []struct {
				EmailAddress string `json:"email_address"`
			} `json:"email_addresses"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	account := &models.Account{
		ID:        event.Data.ID,
		FirstName: event.Data.FirstName,
		LastName:  event.Data.LastName,
		Photo:     event.Data.ImageURL,
	}
	if len(event.Data.EmailAddresses) > 0 {
		account.Email = event.Data.EmailAddresses[0].EmailAddress
	}

	switch event.Type {
	case "user.created":
		err = h.ledger.OnAccountCreated(r.Context(), msgID, account)
	case "user.updated":
		err = h.ledger.OnAccountUpdated(r.Context(), msgID, account)
	case "user.deleted":
		err = h.ledger.OnAccountDeleted(r.Context(), msgID, event.Data.ID)
	default:
		// Unknown event types are acknowledged, not retried.
		h.writeJSON(w, http.StatusOK, map[string]string{})
		return
	}

	if err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicateDelivery) {
			h.writeJSON(w, http.StatusOK, map[string]string{})
			return
		}
		if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			h.writeJSON(w, http.StatusOK, map[string]string{})
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{})
}

func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrUnauthorized)
		return
	}

	credits, err := h.ledger.GetCredits(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"credits": credits})
}

func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrUnauthorized)
		return
	}

	transactions, err := h.ledger.GetTransactionHistory(r.Context(), accountID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrUnauthorized)
		return
	}

	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := h.ledger.CreateOrder(r.Context(), accountID, models.PlanID(req.PlanID))
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidPlan):
			h.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, pkgerrors.ErrAccountNotFound), errors.Is(err, pkgerrors.ErrAccountDeleted):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pkgerrors.ErrUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": order})
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.AccountIDFromContext(r.Context()); !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrUnauthorized)
		return
	}

	var req struct {
		OrderID   string `json:"razorpay_order_id"`
		PaymentID string `json:"razorpay_payment_id"`
		Signature string `json:"razorpay_signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	newBalance, err := h.ledger.VerifyPayment(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidSignature):
			h.writeError(w, http.StatusUnauthorized, err)
		case errors.Is(err, pkgerrors.ErrPaymentNotCaptured):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, pkgerrors.ErrTransactionNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pkgerrors.ErrUnavailable):
			// Safe for the caller to retry with the same order id.
			h.writeError(w, http.StatusServiceUnavailable, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"credit_balance": newBalance})
}

func (h *Handler) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	result, err := h.images.RemoveBackground(r.Context(), accountID, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInsufficientCredit):
			// The UI routes a zero balance to the top-up page.
			h.writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
				"error":          err.Error(),
				"credit_balance": 0,
			})
		case errors.Is(err, pkgerrors.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pkgerrors.ErrUnavailable):
			h.writeError(w, http.StatusBadGateway, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
