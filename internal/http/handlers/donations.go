package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"fundtrace/internal/domain"
	"fundtrace/internal/ledger"
	"fundtrace/internal/middleware"
	"fundtrace/internal/providers/gateway"
)

func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	var req ledger.DonationInput
	if !a.decode(w, r, &req) {
		return
	}
	if req.OriginCountry == "" {
		req.OriginCountry = middleware.CountryFromContext(r.Context())
	}
	d, err := a.Ledger.RecordDonation(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toDonation(d, true))
}

func (a *App) DonationGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	d, err := a.Reader.GetDonation(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	txs, err := a.Reader.ListTransactions(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		items = append(items, toTransaction(&txs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{
		"donation":     toDonation(d, false),
		"transactions": items,
	})
}

type paymentResponse struct {
	Transaction transactionResponse `json:"transaction"`
	SnapToken   string              `json:"snap_token,omitempty"`
	RedirectURL string              `json:"redirect_url,omitempty"`
}

func (a *App) PaymentsInitiate(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req ledger.PaymentInit
	if !a.decode(w, r, &req) {
		return
	}
	pt, err := a.Ledger.InitiatePayment(r.Context(), id, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := paymentResponse{Transaction: toTransaction(pt)}
	if a.Gateway != nil && req.Reference == "" {
		d, err := a.Reader.GetDonation(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		checkout, err := a.Gateway.CreateCheckout(d, pt)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Int64("donation_id", id).Msg("open checkout")
			a.error(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway unavailable")
			return
		}
		resp.SnapToken, resp.RedirectURL = checkout.Token, checkout.RedirectURL
	}
	a.json(w, http.StatusCreated, resp)
}

type gatewayResultRequest struct {
	ReferenceID     string `json:"reference_id"`
	Status          string `json:"status"`
	Method          string `json:"method"`
	ResponseCode    string `json:"response_code"`
	ResponseMessage string `json:"response_message"`
}

func (req gatewayResultRequest) result() domain.GatewayResult {
	return domain.GatewayResult{
		ReferenceID:     req.ReferenceID,
		Status:          domain.TransactionStatus(req.Status),
		Method:          req.Method,
		ResponseCode:    req.ResponseCode,
		ResponseMessage: req.ResponseMessage,
	}
}

func (a *App) PaymentsSettle(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req gatewayResultRequest
	if !a.decode(w, r, &req) {
		return
	}
	pt, err := a.Ledger.SettlePayment(r.Context(), id, req.result())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toTransaction(pt))
}

func (a *App) DonationsRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req gatewayResultRequest
	if !a.decode(w, r, &req) {
		return
	}
	pt, err := a.Ledger.RefundDonation(r.Context(), id, req.result())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toTransaction(pt))
}

// MidtransWebhook applies a signed gateway notification. Notifications that do
// not change the ledger are acknowledged with 200 so the gateway stops
// retrying them.
func (a *App) MidtransWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Gateway == nil {
		a.error(w, http.StatusNotFound, "not_found", "payment gateway not configured")
		return
	}
	var n gateway.Notification
	if !a.decodeLenient(w, r, &n) {
		return
	}
	log := zerolog.Ctx(r.Context()).With().Str("order_id", n.OrderID).Str("transaction_status", n.TransactionStatus).Logger()

	out, err := a.Gateway.Interpret(n)
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		log.Warn().Msg("midtrans notification with invalid signature")
		a.error(w, http.StatusUnauthorized, "invalid_signature", "invalid signature")
		return
	case errors.Is(err, gateway.ErrNotFinal), errors.Is(err, gateway.ErrUnknownOrder):
		log.Info().Err(err).Msg("midtrans notification ignored")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case err != nil:
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	d, err := a.Reader.GetDonation(r.Context(), out.DonationID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if out.Result.Status == domain.TransactionStatusCompleted && !out.GrossAmount.Equal(d.Amount) {
		log.Error().Str("gross_amount", out.GrossAmount.String()).Str("amount", d.Amount.String()).
			Msg("midtrans gross amount does not match donation")
		a.error(w, http.StatusUnprocessableEntity, "amount_mismatch", "gross amount does not match donation")
		return
	}

	pt, err := a.Ledger.SettlePayment(r.Context(), out.DonationID, out.Result)
	if errors.Is(err, domain.ErrAlreadySettled) {
		log.Info().Msg("late midtrans notification for settled donation")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "transaction": toTransaction(pt)})
}
