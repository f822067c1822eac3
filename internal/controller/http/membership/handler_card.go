package membership

import (
	"errors"
	"net/http"

	"github.com/quipper/poc/membercard/internal/services/botcommand"
	"github.com/quipper/poc/membercard/internal/services/registration"
	"github.com/quipper/poc/membercard/pkg/common/apperr"
	"github.com/quipper/poc/membercard/pkg/common/logger"
	"github.com/quipper/poc/membercard/pkg/repositories/members"
)

type notRegisteredView struct {
	RegisterURL string
}

type updateProfileView struct {
	Member *members.Member
	Token  string
}

// notRegistered renders the "please register" page with 404. The form link
// is shown only when links need no token.
func (h *Handler) notRegistered(w http.ResponseWriter, r *http.Request, externalID string) {
	view := notRegisteredView{}
	if !h.opts.RequireSignedLinks {
		view.RegisterURL, _ = botcommand.NewLinks(nil).Registration("", externalID)
	}
	h.render(w, r, http.StatusNotFound, "not_registered.html", view)
}

// showMemberCard GET /show_member_card?user_id=...
func (h *Handler) showMemberCard(w http.ResponseWriter, r *http.Request) {
	externalID := queryUserID(r)
	logger.Debug("showMemberCard [%s]: user_id=%s", reqID(r), externalID)
	if externalID == "" {
		writeError(w, r, "showMemberCard", apperr.Validation(msgUserIDRequired))
		return
	}
	if err := h.checkLink(r.URL.Query().Get("token"), externalID); err != nil {
		writeError(w, r, "showMemberCard", err)
		return
	}
	m, err := h.repo.FindByExternalID(r.Context(), externalID)
	if errors.Is(err, members.ErrNotFound) {
		h.notRegistered(w, r, externalID)
		return
	}
	if err != nil {
		writeError(w, r, "showMemberCard", apperr.Wrap(apperr.KindSystem, "lookup failed", err))
		return
	}
	h.render(w, r, http.StatusOK, "member_card.html", m)
}

// updateProfileForm GET /update_profile?user_id=...
func (h *Handler) updateProfileForm(w http.ResponseWriter, r *http.Request) {
	externalID := queryUserID(r)
	token := r.URL.Query().Get("token")
	logger.Debug("updateProfileForm [%s]: user_id=%s", reqID(r), externalID)
	if externalID == "" {
		writeError(w, r, "updateProfileForm", apperr.Validation(msgUserIDRequired))
		return
	}
	if err := h.checkLink(token, externalID); err != nil {
		writeError(w, r, "updateProfileForm", err)
		return
	}
	m, err := h.repo.FindByExternalID(r.Context(), externalID)
	if errors.Is(err, members.ErrNotFound) {
		h.notRegistered(w, r, externalID)
		return
	}
	if err != nil {
		writeError(w, r, "updateProfileForm", apperr.Wrap(apperr.KindSystem, "lookup failed", err))
		return
	}
	h.render(w, r, http.StatusOK, "update_profile.html", updateProfileView{Member: m, Token: token})
}

// updateProfileSubmit POST /update_profile
// Form fields: external_id, email, member_number, token?
func (h *Handler) updateProfileSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, "updateProfileSubmit", apperr.Validation("invalid form body"))
		return
	}
	externalID := formUserID(r)
	token := r.PostFormValue("token")
	logger.Debug("updateProfileSubmit [%s]: user_id=%s", reqID(r), externalID)
	if externalID != "" {
		if err := h.checkLink(token, externalID); err != nil {
			writeError(w, r, "updateProfileSubmit", err)
			return
		}
	}

	m, err := h.registration.UpdateProfile(r.Context(), externalID, registration.ProfileInput{
		Email:        r.PostFormValue("email"),
		MemberNumber: r.PostFormValue("member_number"),
	})
	if err != nil {
		writeError(w, r, "updateProfileSubmit", err)
		return
	}
	h.render(w, r, http.StatusOK, "registration_complete.html", completeView{Message: msgUpdated, Member: m, Token: token})
}
