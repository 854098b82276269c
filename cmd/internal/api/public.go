package api

import (
	"net/http"
	"net/url"
	"strings"

	"invtrack/cmd/internal/share"
)

// handleShareView redeems a share token: 200 with groups, 404 unknown,
// 410 revoked or expired, 403 email not on the allow-list, 503 when the
// decision could not be audited.
func (h *Handler) handleShareView(w http.ResponseWriter, r *http.Request) {
	ip := ipString(clientIP(r, h.cfg.TrustProxy))
	now := h.now().UTC()

	if blocked, retry := h.resolveFailures.Check(ip, now); blocked {
		h.log.Info("api.share.throttled", "ip", ip)
		writeRateLimited(w, retry)
		return
	}

	res, err := h.deps.Shares.Resolve(r.Context(), share.ResolveInput{
		Token:     r.PathValue("token"),
		Email:     queryEmail(r),
		ClientIP:  ip,
		UserAgent: strings.TrimSpace(r.UserAgent()),
	})
	if err != nil {
		h.writeKindError(w, "api.share.resolve.fail", err)
		return
	}

	switch res.Result {
	case share.ResultAllowed:
		writeJSON(w, http.StatusOK, shareViewResponse{
			Scope:     res.Link.Scope,
			ExpiresAt: res.Link.ExpiresAt,
			Groups:    toGroupsResponse(res.Groups),
		})
	case share.ResultNotFound:
		h.resolveFailures.Fail(ip, now)
		writeError(w, http.StatusNotFound, "not_found", "share link not found")
	case share.ResultGone:
		writeError(w, http.StatusGone, "gone", "share link "+res.Reason)
	case share.ResultForbidden:
		writeError(w, http.StatusForbidden, "forbidden", "email not allowed for this link")
	default:
		h.log.Error("api.share.result.unknown", "result", res.Result)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// queryEmail reads ?email= with path unescaping instead of form decoding, so a
// literal "+" in an address (x+tag@example.com) is kept. Percent-encoded
// values decode as usual.
func queryEmail(r *http.Request) string {
	for _, kv := range strings.Split(r.URL.RawQuery, "&") {
		k, v, _ := strings.Cut(kv, "=")
		if k != "email" {
			continue
		}
		s, err := url.PathUnescape(v)
		if err != nil {
			return ""
		}
		return s
	}
	return ""
}
