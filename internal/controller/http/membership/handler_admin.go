package membership

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/quipper/poc/membercard/internal/services/memberlist"
	"github.com/quipper/poc/membercard/pkg/common/apperr"
	"github.com/quipper/poc/membercard/pkg/common/logger"
)

// pageParams reads page and per_page. Missing or invalid values mean 0,
// which lists everything.
func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, perPage := 0, 0
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = min(v, memberlist.MaxPage)
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		perPage = v
	}
	return page, perPage
}

func (h *Handler) loadMembers(w http.ResponseWriter, r *http.Request, op string) (*memberlist.Page, bool) {
	page, perPage := pageParams(r)
	p, err := h.list.List(r.Context(), page, perPage)
	if err != nil {
		writeError(w, r, op, apperr.Wrap(apperr.KindSystem, "list failed", err))
		return nil, false
	}
	logger.Debug("%s [%s]: %d of %d members", op, reqID(r), len(p.Members), p.Total)
	if p.HasNext {
		w.Header().Add("Link", "<"+buildPageURL(r, p.Page+1, p.PerPage)+">; rel=\"next\"")
	}
	return p, true
}

// adminListMembers GET /admin/members
func (h *Handler) adminListMembers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadMembers(w, r, "adminListMembers")
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "member_list.html", p)
}

// adminListMembersJSON GET /admin/members.json
func (h *Handler) adminListMembersJSON(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadMembers(w, r, "adminListMembersJSON")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

func buildPageURL(r *http.Request, page, perPage int) string {
	scheme, host := schemeHost(r)
	u := url.URL{Scheme: scheme, Host: host, Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()
	return u.String()
}
