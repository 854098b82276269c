package api

import (
	"time"

	"invtrack/cmd/internal/labels"
	"invtrack/cmd/internal/share"
	"invtrack/cmd/inventory"
)

type assetResponse struct {
	ID            string    `json:"id"`
	Identifier    string    `json:"identifier"`
	OwnerName     string    `json:"owner_name"`
	DisplayName   string    `json:"display_name"`
	Specification string    `json:"specification,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Status        string    `json:"status"`
	Location      string    `json:"location"`
	QRURL         string    `json:"qr_url,omitempty"`
	BarcodeURL    string    `json:"barcode_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type groupResponse struct {
	Owner  string          `json:"owner"`
	Assets []assetResponse `json:"assets"`
}

type shareViewResponse struct {
	Scope     share.Scope     `json:"scope"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Groups    []groupResponse `json:"groups"`
}

type shareLinkResponse struct {
	share.Link
	URL         string `json:"url,omitempty"`
	State       string `json:"state"`
	AccessCount *int   `json:"access_count,omitempty"`
}

type issueShareResponse struct {
	Links []shareLinkResponse `json:"links"`
}

type backfillResponse struct {
	Total    int `json:"total"`
	Assigned int `json:"assigned"`
}

// adminCodePath is where operators download an asset's code images.
func adminCodePath(identifier string, kind labels.Kind) string {
	return "/admin/codes/" + identifier + "/" + string(kind)
}

// toAssetResponse renders an asset for operators, with code image links.
func toAssetResponse(a inventory.Asset) assetResponse {
	out := toSharedAssetResponse(a)
	if a.Identifier != "" {
		out.QRURL = adminCodePath(a.Identifier, labels.KindQR)
		out.BarcodeURL = adminCodePath(a.Identifier, labels.KindBarcode)
	}
	return out
}

// toSharedAssetResponse renders an asset for share viewers. Code images are
// operator-only, so no links are included.
func toSharedAssetResponse(a inventory.Asset) assetResponse {
	return assetResponse{
		ID:            a.ID,
		Identifier:    a.Identifier,
		OwnerName:     a.OwnerName,
		DisplayName:   a.DisplayName,
		Specification: a.Specification,
		Brand:         a.Brand,
		Status:        a.Status,
		Location:      string(a.Location),
		CreatedAt:     a.CreatedAt,
	}
}

func toGroupsResponse(groups []inventory.AssetGroup) []groupResponse {
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		assets := make([]assetResponse, 0, len(g.Assets))
		for _, a := range g.Assets {
			assets = append(assets, toSharedAssetResponse(a))
		}
		out = append(out, groupResponse{Owner: g.Owner, Assets: assets})
	}
	return out
}

func toShareLinkResponse(l share.Link, now time.Time) shareLinkResponse {
	out := shareLinkResponse{Link: l, State: string(l.StateAt(now))}
	if l.Token != "" {
		out.URL = "/share/" + l.Token
	}
	return out
}
