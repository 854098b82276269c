package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"invtrack/cmd/internal/audit"
	"invtrack/cmd/internal/labels"
	"invtrack/cmd/inventory"
)

func (h *Handler) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := readRequest(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeRequestError(w, "api.assets.create.fail", err)
		return
	}

	a, err := h.deps.Assets.Create(r.Context(), inventory.CreateInput{
		OwnerName:     req.OwnerName,
		DisplayName:   req.DisplayName,
		Specification: req.Specification,
		Brand:         req.Brand,
		Status:        req.Status,
		Location:      req.Location,
	})
	if err != nil {
		h.writeKindError(w, "api.assets.create.fail", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetResponse(a))
}

func (h *Handler) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Assets.GetByIdentifier(r.Context(), r.PathValue("identifier"))
	if err != nil {
		h.writeKindError(w, "api.assets.get.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(a))
}

func (h *Handler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Assets.Backfill(r.Context())
	if err != nil {
		h.writeKindError(w, "api.codes.backfill.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, backfillResponse{Total: res.Total, Assigned: res.Assigned})
}

func (h *Handler) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	sum, err := h.deps.Labels.RenderAll(r.Context(), h.deps.Assets.Store())
	if err != nil {
		h.writeKindError(w, "api.codes.generate_all.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleIssueShares(w http.ResponseWriter, r *http.Request) {
	var req issueShareRequest
	if err := readRequest(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeRequestError(w, "api.shares.issue.fail", err)
		return
	}

	links, err := h.deps.Shares.Issue(r.Context(), req.input())
	if err != nil {
		h.writeKindError(w, "api.shares.issue.fail", err)
		return
	}

	now := h.now().UTC()
	out := issueShareResponse{Links: make([]shareLinkResponse, 0, len(links))}
	for _, l := range links {
		out.Links = append(out.Links, toShareLinkResponse(l, now))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleListShares(w http.ResponseWriter, r *http.Request) {
	links, err := h.deps.Shares.List(r.Context(), queryLimit(r))
	if err != nil {
		h.writeKindError(w, "api.shares.list.fail", err)
		return
	}
	now := h.now().UTC()
	out := make([]shareLinkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, toShareLinkResponse(l, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": out})
}

func (h *Handler) handleGetShare(w http.ResponseWriter, r *http.Request) {
	l, err := h.deps.Shares.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeKindError(w, "api.shares.get.fail", err)
		return
	}
	n, err := h.deps.Audit.CountByLink(r.Context(), l.ID)
	if err != nil {
		h.writeKindError(w, "api.shares.count.fail", err)
		return
	}
	resp := toShareLinkResponse(l, h.now().UTC())
	resp.AccessCount = &n
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRevokeShareByID(w http.ResponseWriter, r *http.Request) {
	l, err := h.deps.Shares.RevokeByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeKindError(w, "api.shares.revoke.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toShareLinkResponse(l, h.now().UTC()))
}

func (h *Handler) handleRevokeShareByToken(w http.ResponseWriter, r *http.Request) {
	var req revokeByTokenRequest
	if err := readRequest(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.writeRequestError(w, "api.shares.revoke.fail", err)
		return
	}
	l, err := h.deps.Shares.Revoke(r.Context(), req.Token)
	if err != nil {
		h.writeKindError(w, "api.shares.revoke.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toShareLinkResponse(l, h.now().UTC()))
}

// handleListAccesses lists audit rows newest first, optionally for one link.
func (h *Handler) handleListAccesses(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	linkID := strings.TrimSpace(r.URL.Query().Get("link_id"))

	var (
		rows []audit.AccessAttempt
		err  error
	)
	if linkID != "" {
		rows, err = h.deps.Audit.ListByLink(r.Context(), linkID, limit)
	} else {
		rows, err = h.deps.Audit.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.writeKindError(w, "api.accesses.list.fail", err)
		return
	}
	if rows == nil {
		rows = []audit.AccessAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accesses": rows})
}

// handleCodeImage serves an asset's QR or barcode image, rendering it on
// demand. Images carry the owner's name, so the route is operator-only.
// ?format=png|jpg selects the encoding; ?preview=1 serves it inline.
func (h *Handler) handleCodeImage(w http.ResponseWriter, r *http.Request) {
	kind, ok := labels.ParseKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown code kind")
		return
	}
	format, ok := labels.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "format must be png or jpg")
		return
	}

	img, err := h.deps.Labels.Image(r.Context(), r.PathValue("identifier"), kind, format)
	if err != nil {
		h.writeKindError(w, "api.codes.image.fail", err)
		return
	}

	etag := img.Digest.ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(h.cfg.CodeCacheMaxAge.Seconds())))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	disposition := "attachment"
	if queryBool(r, "preview") {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, img.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(img.Data)
	}
}
