package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"crypto-paylink/internal/domain/model"
	"crypto-paylink/internal/infra/metrics"
	"crypto-paylink/internal/usecase"
)

type tokenRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleAuthToken trades the configured admin API key for a short-lived
// JWT. The token is also mirrored into the session cookie.
func (s *Server) handleAuthToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "apiKey is required")
			return
		}
		if !s.auth.KeyMatches(req.APIKey) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		token, exp, err := s.auth.Mint(time.Now())
		if err != nil {
			s.log.Error().Err(err).Msg("minting admin token failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.auth.SetSessionCookie(w, token)
		writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp})
	}
}

type createLinkRequest struct {
	TargetURL        string                  `json:"targetUrl" validate:"required,url"`
	Description      string                  `json:"description"`
	Preview          string                  `json:"preview"`
	RecipientAddress string                  `json:"recipientAddress" validate:"required"`
	Price            paymentOptionView       `json:"price"`
	PaymentOptions   []paymentOptionView     `json:"paymentOptions" validate:"omitempty,dive"`
	MaxUses          int                     `json:"maxUses" validate:"min=0"`
	ExpiresAt        *time.Time              `json:"expiresAt"`
	MultiUse         bool                    `json:"multiUse"`
	Subscription     *subscriptionConfigView `json:"subscription"`
	Installment      *installmentConfigView  `json:"installment"`
	Referral         *referralConfigView     `json:"referral"`
}

func (s *Server) handleCreateLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		in := usecase.CreatePayLinkInput{
			TargetURL:        req.TargetURL,
			Description:      req.Description,
			Preview:          req.Preview,
			RecipientAddress: req.RecipientAddress,
			Price: model.PaymentOption{
				ChainID:     req.Price.ChainID,
				TokenSymbol: req.Price.TokenSymbol,
				Amount:      req.Price.Amount,
			},
			MaxUses:   req.MaxUses,
			ExpiresAt: req.ExpiresAt,
			MultiUse:  req.MultiUse,
		}
		for _, o := range req.PaymentOptions {
			in.PaymentOptions = append(in.PaymentOptions, model.PaymentOption{
				ChainID:     o.ChainID,
				TokenSymbol: o.TokenSymbol,
				Amount:      o.Amount,
			})
		}
		if req.Subscription != nil {
			in.Subscription = &model.SubscriptionConfig{
				Interval:         model.BillingInterval(req.Subscription.Interval),
				IntervalCount:    req.Subscription.IntervalCount,
				GracePeriodHours: req.Subscription.GracePeriodHours,
				TrialDays:        req.Subscription.TrialDays,
				MaxCycles:        req.Subscription.MaxCycles,
			}
		}
		if req.Installment != nil {
			in.Installment = &model.InstallmentConfig{
				TotalInstallments:  req.Installment.TotalInstallments,
				DownPaymentPercent: req.Installment.DownPaymentPercent,
				IntervalDays:       req.Installment.IntervalDays,
				GracePeriodDays:    req.Installment.GracePeriodDays,
			}
		}
		if req.Referral != nil {
			in.Referral = &model.ReferralConfig{
				Enabled:           req.Referral.Enabled,
				CommissionPercent: req.Referral.CommissionPercent,
			}
		}

		link, err := s.links.Create(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newLinkView(link, s.cfg.Server.PublicBaseURL))
	}
}

func (s *Server) handleGetLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := s.links.Get(r.Context(), chi.URLParam(r, "linkID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newLinkView(link, s.cfg.Server.PublicBaseURL))
	}
}

type linkListResponse struct {
	Data   []*linkView `json:"data"`
	Count  int         `json:"count"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func (s *Server) handleListLinks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		links, err := s.links.List(r.Context(), offset, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := linkListResponse{Data: make([]*linkView, 0, len(links)), Count: len(links), Limit: limit, Offset: offset}
		for _, l := range links {
			resp.Data = append(resp.Data, newLinkView(l, s.cfg.Server.PublicBaseURL))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDisableLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := s.links.Disable(r.Context(), chi.URLParam(r, "linkID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newLinkView(link, s.cfg.Server.PublicBaseURL))
	}
}

type createReferralRequest struct {
	ReferrerAddress string `json:"referrerAddress" validate:"required"`
	Code            string `json:"code"`
}

func (s *Server) handleCreateReferral() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReferralRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "referrerAddress is required")
			return
		}

		ref, err := s.refs.CreateReferral(r.Context(), chi.URLParam(r, "linkID"), req.ReferrerAddress, req.Code)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newReferralView(ref))
	}
}

type referralStatsResponse struct {
	Referral    *referralView     `json:"referral"`
	Commissions []*commissionView `json:"commissions"`
}

func (s *Server) handleReferralStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, comms, err := s.refs.Stats(r.Context(), chi.URLParam(r, "linkID"), chi.URLParam(r, "code"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := referralStatsResponse{
			Referral:    newReferralView(ref),
			Commissions: make([]*commissionView, 0, len(comms)),
		}
		for _, c := range comms {
			resp.Commissions = append(resp.Commissions, newCommissionView(c))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleCommissionTransition(action string, apply func(context.Context, string) (*model.ReferralCommission, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := apply(r.Context(), chi.URLParam(r, "commissionID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.IncCommissionTransition(action)
		writeJSON(w, http.StatusOK, newCommissionView(c))
	}
}

func (s *Server) handleGetSubscription() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := s.subs.Get(r.Context(), chi.URLParam(r, "subscriptionID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSubscriptionView(sub))
	}
}

func (s *Server) handleSubscriptionTransition(apply func(context.Context, string) (*model.Subscription, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := apply(r.Context(), chi.URLParam(r, "subscriptionID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSubscriptionView(sub))
	}
}

func (s *Server) handleGetPlan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := s.plans.GetPlan(r.Context(), chi.URLParam(r, "planID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newPlanView(plan))
	}
}

func (s *Server) handleCancelPlan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := s.plans.CancelPlan(r.Context(), chi.URLParam(r, "planID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newPlanView(plan))
	}
}
