package web

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"crypto-paylink/internal/config"
	"crypto-paylink/internal/infra/metrics"
	"crypto-paylink/internal/infra/redis"
	"crypto-paylink/internal/protocol"
	"crypto-paylink/internal/usecase"
)

// Confirmation attempts are throttled per (link, caller) because each one
// can cost an RPC round trip.
const (
	confirmRateLimit  = 20
	confirmRateWindow = time.Minute
)

// handleAccess serves GET /l/{linkID}: the payment-gated front door.
// Paid viewers are redirected, everyone else gets a machine-readable
// challenge or refusal.
func (s *Server) handleAccess() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		linkID := chi.URLParam(r, "linkID")
		payer := r.URL.Query().Get("payer")
		if payer == "" {
			payer = r.Header.Get("X-Payer-Address")
		}

		dec, err := s.access.Evaluate(r.Context(), linkID, payer)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		switch dec.Outcome {
		case usecase.OutcomeRedirect:
			http.Redirect(w, r, dec.RedirectURL, http.StatusFound)
		case usecase.OutcomePaymentRequired:
			writeJSON(w, http.StatusPaymentRequired, dec.Challenge)
		case usecase.OutcomeForbidden:
			writeJSON(w, http.StatusForbidden, dec.Refusal)
		case usecase.OutcomeNotFound:
			writeJSON(w, http.StatusNotFound, dec.Refusal)
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

type confirmRequest struct {
	TxHash       string `json:"txHash" validate:"required"`
	ChainID      string `json:"chainId"`
	ReferralCode string `json:"referralCode"`
	Nonce        string `json:"nonce"`
	Payer        string `json:"payer"`
}

type confirmResponse struct {
	Status         string `json:"status"`
	TxHash         string `json:"txHash"`
	RedirectURL    string `json:"redirectUrl,omitempty"`
	Amount         string `json:"amount,omitempty"`
	TokenSymbol    string `json:"tokenSymbol,omitempty"`
	ReasonCode     string `json:"reasonCode,omitempty"`
	RequiredAmount string `json:"requiredAmount,omitempty"`
	ActualAmount   string `json:"actualAmount,omitempty"`
}

// handleConfirm serves POST /l/{linkID}/confirm: a payer reporting the
// transaction they sent. Underpayment is a 400 carrying both amounts so
// the payer can top up; link-level refusals keep the 403/404 shape of the
// access endpoint.
func (s *Server) handleConfirm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		linkID := chi.URLParam(r, "linkID")

		if s.limiter != nil {
			key := redis.ConfirmAttemptKey(linkID, remoteHost(r))
			ok, err := s.limiter.Allow(r.Context(), key, confirmRateLimit, confirmRateWindow)
			if err != nil {
				// A broken limiter must not take confirmations down with it.
				s.log.Warn().Err(err).Msg("rate limiter unavailable, request allowed")
			} else if !ok {
				observeConfirm("throttled", "", start)
				writeError(w, http.StatusTooManyRequests, "too many confirmation attempts")
				return
			}
		}

		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			observeConfirm("invalid", "", start)
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			observeConfirm("invalid", "", start)
			writeError(w, http.StatusBadRequest, "txHash is required")
			return
		}
		if req.Nonce == "" {
			req.Nonce = r.URL.Query().Get("nonce")
		}

		res, err := s.payments.Confirm(r.Context(), linkID, usecase.ConfirmInput{
			TxHash:       req.TxHash,
			ChainID:      req.ChainID,
			ReferralCode: req.ReferralCode,
			Nonce:        req.Nonce,
			Payer:        req.Payer,
		})
		if err != nil {
			observeConfirm("error", "", start)
			writeDomainError(w, err)
			return
		}

		if res.Refusal != nil {
			observeConfirm("refused", string(res.Refusal.ReasonCode), start)
			status := http.StatusForbidden
			if res.Refusal.ReasonCode == protocol.ReasonLinkNotFound {
				status = http.StatusNotFound
			}
			writeJSON(w, status, res.Refusal)
			return
		}

		verdict := res.Status
		if res.ReasonCode == protocol.ReasonPaymentUnderpaid {
			verdict = "underpaid"
		}
		metrics.IncPayment(verdict)
		if res.Status == usecase.ConfirmStatusConfirmed {
			metrics.AddPaymentRevenue(res.TokenSymbol, res.Amount)
		}
		observeConfirm(res.Status, string(res.ReasonCode), start)

		body := confirmResponse{
			Status:         res.Status,
			TxHash:         res.TxHash,
			RedirectURL:    res.RedirectURL,
			Amount:         res.Amount,
			TokenSymbol:    res.TokenSymbol,
			ReasonCode:     string(res.ReasonCode),
			RequiredAmount: res.RequiredAmount,
			ActualAmount:   res.ActualAmount,
		}
		if res.ReasonCode == protocol.ReasonPaymentUnderpaid {
			writeJSON(w, http.StatusBadRequest, body)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func observeConfirm(result, reason string, start time.Time) {
	if reason == "" {
		reason = "none"
	}
	metrics.ConfirmRequests.WithLabelValues(result, reason).Inc()
	metrics.ConfirmDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusResponse struct {
	Paid        bool   `json:"paid"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// handleStatus serves GET /l/{linkID}/status?txHash=: the polling side of
// the confirm flow.
func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		linkID := chi.URLParam(r, "linkID")
		txHash := r.URL.Query().Get("txHash")
		if txHash == "" {
			writeError(w, http.StatusBadRequest, "txHash query parameter is required")
			return
		}

		st, err := s.payments.Status(r.Context(), linkID, txHash)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{
			Paid:        st.Paid,
			Status:      st.Status,
			RedirectURL: st.RedirectURL,
		})
	}
}

type subscribeRequest struct {
	SubscriberAddress string `json:"subscriberAddress" validate:"required"`
}

type subscribeResponse struct {
	Subscription *subscriptionView         `json:"subscription"`
	RedirectURL  string                    `json:"redirectUrl,omitempty"`
	Challenge    *protocol.PaymentRequired `json:"challenge,omitempty"`
}

// handleSubscribe serves POST /l/{linkID}/subscribe. The response carries
// the fresh subscription plus whatever the viewer should do next: follow
// the redirect (trial access) or settle the first payment challenge.
func (s *Server) handleSubscribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		linkID := chi.URLParam(r, "linkID")

		var req subscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "subscriberAddress is required")
			return
		}

		sub, err := s.subs.Subscribe(r.Context(), linkID, req.SubscriberAddress)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := subscribeResponse{Subscription: newSubscriptionView(sub)}
		if dec, err := s.access.Evaluate(r.Context(), linkID, req.SubscriberAddress); err == nil {
			switch dec.Outcome {
			case usecase.OutcomeRedirect:
				resp.RedirectURL = dec.RedirectURL
			case usecase.OutcomePaymentRequired:
				resp.Challenge = dec.Challenge
			}
		} else {
			s.log.Warn().Err(err).Str("link_id", linkID).Msg("post-subscribe evaluation failed")
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// handleQR serves GET /l/{linkID}/qr?chainId=: a wallet-scannable PNG of
// the payment request URI for one of the link's payment options.
func (s *Server) handleQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		linkID := chi.URLParam(r, "linkID")

		link, err := s.links.Get(r.Context(), linkID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		opt, ok := link.OptionForChain(r.URL.Query().Get("chainId"))
		if !ok {
			writeError(w, http.StatusBadRequest, "no payment option for that chain")
			return
		}
		ch, ok := s.cfg.Chain(opt.ChainID)
		if !ok {
			writeError(w, http.StatusBadRequest, "chain not configured")
			return
		}

		png, err := qrcode.Encode(paymentURI(ch.Family, link.RecipientAddress, opt.Amount), qrcode.Medium, 256)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

// paymentURI renders the request URI encoded into QR codes. Amounts stay
// in display units; wallets convert to base units themselves.
func paymentURI(family, recipient, amount string) string {
	if family == config.ChainFamilySolana {
		return fmt.Sprintf("solana:%s?amount=%s", recipient, amount)
	}
	return fmt.Sprintf("ethereum:%s?value=%s", recipient, amount)
}
