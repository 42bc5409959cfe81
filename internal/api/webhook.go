package api

import (
	"log/slog"
	"net/http"

	"github.com/ValenteCreativo/carepilot/internal/convo"
	"github.com/ValenteCreativo/carepilot/internal/webhook"
)

// handleWhatsApp is the Twilio inbound-message webhook. The reply goes
// back synchronously as TwiML, so the plan pipeline runs inside the
// request when onboarding completes or a plan update comes in.
func handleWhatsApp(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid form body: %v", err)
			return
		}

		if deps.TwilioAuthToken == "" {
			slog.Warn("twilio auth token not configured, skipping webhook signature verification")
		} else {
			params := make(map[string]string, len(r.PostForm))
			for k, vs := range r.PostForm {
				if len(vs) > 0 {
					params[k] = vs[0]
				}
			}
			sig := r.Header.Get("X-Twilio-Signature")
			if !webhook.ValidSignature(deps.TwilioAuthToken, requestURL(r), params, sig) {
				httpError(w, http.StatusUnauthorized, "invalid webhook signature")
				return
			}
		}

		reply, err := deps.Convo.HandleInbound(r.Context(), convo.Inbound{
			From:       r.PostFormValue("From"),
			Body:       r.PostFormValue("Body"),
			MessageSid: r.PostFormValue("MessageSid"),
			RawForm:    r.PostForm.Encode(),
		})
		if err != nil {
			slog.Error("webhook handling failed", "error", err)
			httpError(w, http.StatusInternalServerError, "failed to handle message")
			return
		}

		w.Header().Set("Content-Type", "text/xml")
		w.Write(webhook.TwiML(reply))
	}
}

// requestURL rebuilds the public URL the provider signed. Behind a proxy
// the original scheme arrives in X-Forwarded-Proto.
func requestURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func handleExecuteActions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Executor.SweepDue(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "sweeping due actions: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
