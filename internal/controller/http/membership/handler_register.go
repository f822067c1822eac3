package membership

import (
	"errors"
	"net/http"
	"strings"

	"github.com/quipper/poc/membercard/internal/services/registration"
	"github.com/quipper/poc/membercard/pkg/common/apperr"
	"github.com/quipper/poc/membercard/pkg/common/logger"
	"github.com/quipper/poc/membercard/pkg/repositories/members"
)

const (
	msgUserIDRequired = "user_id is required"
	msgInvalidLink    = "registration link is invalid or expired"

	msgRegistered = "会員登録が完了しました。"
	msgUpdated    = "会員情報を更新しました。"
)

type registerView struct {
	ExternalID  string
	Token       string
	Name        string
	Region      string
	Email       string
	PhoneNumber string
	Registered  bool
}

type completeView struct {
	Message string
	Member  *members.Member
	Token   string
}

// queryUserID reads the chat user id from the query string.
func queryUserID(r *http.Request) string {
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("user_id")); id != "" {
		return id
	}
	return strings.TrimSpace(q.Get("external_id"))
}

// formUserID reads the chat user id from a submitted form.
func formUserID(r *http.Request) string {
	if id := strings.TrimSpace(r.PostFormValue("external_id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.PostFormValue("line_user_id"))
}

// checkLink enforces the link token when signed links are required.
func (h *Handler) checkLink(token, externalID string) error {
	if !h.opts.RequireSignedLinks {
		return nil
	}
	if h.opts.Signer == nil {
		return apperr.New(apperr.KindSystem, "link signer not configured")
	}
	if err := h.opts.Signer.Verify(token, externalID); err != nil {
		return apperr.Wrap(apperr.KindValidation, msgInvalidLink, err)
	}
	return nil
}

// registerForm GET /register?user_id=...
// Renders the form pre-filled with the user id and any stored profile.
func (h *Handler) registerForm(w http.ResponseWriter, r *http.Request) {
	externalID := queryUserID(r)
	token := r.URL.Query().Get("token")
	logger.Debug("registerForm [%s]: user_id=%s", reqID(r), externalID)
	if externalID == "" {
		writeError(w, r, "registerForm", apperr.Validation(msgUserIDRequired))
		return
	}
	if err := h.checkLink(token, externalID); err != nil {
		writeError(w, r, "registerForm", err)
		return
	}

	view := registerView{ExternalID: externalID, Token: token}
	m, err := h.repo.FindByExternalID(r.Context(), externalID)
	switch {
	case err == nil:
		view.Name, view.Region, view.Email, view.PhoneNumber = m.Name, m.Region, m.Email, m.PhoneNumber
		view.Registered = true
	case errors.Is(err, members.ErrNotFound):
	default:
		writeError(w, r, "registerForm", apperr.Wrap(apperr.KindSystem, "lookup failed", err))
		return
	}
	h.render(w, r, http.StatusOK, "register.html", view)
}

// registerSubmit POST /register
// Form fields: external_id, name, region, email?, phone_number?, token?
func (h *Handler) registerSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, "registerSubmit", apperr.Validation("invalid form body"))
		return
	}
	in := registration.Input{
		ExternalID:  formUserID(r),
		Name:        r.PostFormValue("name"),
		Region:      r.PostFormValue("region"),
		Email:       r.PostFormValue("email"),
		PhoneNumber: r.PostFormValue("phone_number"),
	}
	token := r.PostFormValue("token")
	logger.Debug("registerSubmit [%s]: user_id=%s", reqID(r), in.ExternalID)

	if in.ExternalID != "" {
		if err := h.checkLink(token, in.ExternalID); err != nil {
			writeError(w, r, "registerSubmit", err)
			return
		}
	}

	res, err := h.registration.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, "registerSubmit", err)
		return
	}

	msg := msgRegistered
	if res.Outcome == registration.Updated {
		msg = msgUpdated
	}
	h.render(w, r, http.StatusOK, "registration_complete.html", completeView{Message: msg, Member: res.Member, Token: token})
}
