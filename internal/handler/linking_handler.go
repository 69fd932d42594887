package handler

import (
	"encoding/json"
	"net/http"

	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Vinculação de UC (linking wizard)
// ============================================================

func createLinkSessionHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/link/sessions")
		defer span.End()

		sess := linkSvc.StartSession()
		span.SetAttributes(attribute.String("session.id", sess.ID))
		writeJSON(w, http.StatusCreated, sess)
	}
}

func getLinkSessionHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := linkSvc.GetSession(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func deleteLinkSessionHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		linkSvc.DiscardSession(chi.URLParam(r, "sessionId"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func submitCPFHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/link/sessions/{sessionId}/cpf")
		defer span.End()

		var body struct {
			CPF string `json:"cpf"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sess, err := linkSvc.SubmitCPF(ctx, chi.URLParam(r, "sessionId"), body.CPF)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func selectPhoneHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Phone string `json:"phone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sess, err := linkSvc.SelectPhone(chi.URLParam(r, "sessionId"), body.Phone)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func confirmPhoneHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/link/sessions/{sessionId}/phone/confirm")
		defer span.End()

		sess, err := linkSvc.ConfirmPhone(ctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func submitSMSHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/link/sessions/{sessionId}/sms")
		defer span.End()

		var body struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sess, err := linkSvc.SubmitSMSCode(ctx, chi.URLParam(r, "sessionId"), body.Code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func toggleUnitHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sess, err := linkSvc.ToggleUnit(chi.URLParam(r, "sessionId"), body.Index)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func toggleAllUnitsHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := linkSvc.ToggleAll(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func linkUnitsHandler(linkSvc *service.LinkingService, dashSvc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/link/sessions/{sessionId}/link")
		defer span.End()

		sess, outcome, err := linkSvc.LinkSelected(ctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// Newly linked units must show up on the landing screen right away.
		if operatorID := OperatorIDFromContext(ctx); operatorID != "" {
			dashSvc.Invalidate(operatorID)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": sess,
			"outcome": outcome,
		})
	}
}

func linkSessionBackHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := linkSvc.Back(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func linkSessionRestartHandler(linkSvc *service.LinkingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := linkSvc.Restart(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}
