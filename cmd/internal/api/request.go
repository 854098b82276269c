package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/share"
)

// requestBody is a JSON request that checks and normalizes its own fields
// once decoded.
type requestBody interface {
	validate() error
}

// malformedBody marks a body that is not exactly one JSON object of the
// request's shape.
type malformedBody struct{ err error }

func (e malformedBody) Error() string { return "malformed body: " + e.err.Error() }
func (e malformedBody) Unwrap() error { return e.err }

// readRequest decodes one JSON object of at most maxBytes into dst and
// validates it. Unknown fields and trailing data are rejected.
func readRequest(w http.ResponseWriter, r *http.Request, maxBytes int64, dst requestBody) error {
	if r.Body == nil || r.Body == http.NoBody {
		return malformedBody{errors.New("empty body")}
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return malformedBody{err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return malformedBody{errors.New("extra data after JSON object")}
	}
	return dst.validate()
}

// writeRequestError reports a readRequest failure.
func (h *Handler) writeRequestError(w http.ResponseWriter, event string, err error) {
	var tooLarge *http.MaxBytesError
	var bad malformedBody
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
	default:
		h.writeKindError(w, event, err)
	}
}

type createAssetRequest struct {
	OwnerName     string `json:"owner_name"`
	DisplayName   string `json:"display_name"`
	Specification string `json:"specification"`
	Brand         string `json:"brand"`
	Status        string `json:"status"`
	Location      string `json:"location"`
}

func (req *createAssetRequest) validate() error {
	const op = "api.createAsset"

	req.OwnerName = strings.TrimSpace(req.OwnerName)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Specification = strings.TrimSpace(req.Specification)
	req.Brand = strings.TrimSpace(req.Brand)
	req.Status = strings.TrimSpace(req.Status)
	req.Location = strings.TrimSpace(req.Location)

	if req.OwnerName == "" {
		return errkind.Invalid(op, "owner_name is required")
	}
	if req.DisplayName == "" {
		return errkind.Invalid(op, "display_name is required")
	}
	return nil
}

type issueShareRequest struct {
	Scope      string   `json:"scope"`
	Targets    []string `json:"targets"`
	AccessMode string   `json:"access_mode"`
	Emails     []string `json:"emails"`
	// TTLHours 0 means no expiry.
	TTLHours  float64 `json:"ttl_hours"`
	CreatedBy string  `json:"created_by"`

	scope share.Scope
	mode  share.AccessMode
}

func (req *issueShareRequest) validate() error {
	const op = "api.issueShare"

	var ok bool
	if req.scope, ok = share.ParseScope(req.Scope); !ok {
		return errkind.OpError{Op: op, Kind: errkind.ErrInvalidScope, Msg: "scope must be single, multiple or all"}
	}
	if req.mode, ok = share.ParseAccessMode(req.AccessMode); !ok {
		return errkind.Invalid(op, "access_mode must be anyone or email_allowlist")
	}
	if req.TTLHours < 0 {
		return errkind.Invalid(op, "ttl_hours must not be negative")
	}
	req.CreatedBy = strings.TrimSpace(req.CreatedBy)
	return nil
}

func (req *issueShareRequest) input() share.IssueInput {
	return share.IssueInput{
		Scope:      req.scope,
		Targets:    req.Targets,
		AccessMode: req.mode,
		Emails:     req.Emails,
		TTL:        time.Duration(req.TTLHours * float64(time.Hour)),
		CreatedBy:  req.CreatedBy,
	}
}

type revokeByTokenRequest struct {
	Token string `json:"token"`
}

func (req *revokeByTokenRequest) validate() error {
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return errkind.Invalid("api.revokeShare", "token is required")
	}
	return nil
}
