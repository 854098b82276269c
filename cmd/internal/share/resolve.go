package share

import (
	"context"
	"strings"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/audit"
	"invtrack/cmd/inventory"
)

// AccessResult is the outcome of a redemption attempt.
type AccessResult string

const (
	ResultAllowed   AccessResult = "allowed"
	ResultNotFound  AccessResult = "not_found"
	ResultGone      AccessResult = "gone"
	ResultForbidden AccessResult = "forbidden"
)

// ResolveInput is one redemption attempt.
type ResolveInput struct {
	Token     string
	Email     string
	ClientIP  string
	UserAgent string
}

// Resolution is the decision for a redemption attempt. Groups is set only
// when Result is ResultAllowed.
type Resolution struct {
	Result AccessResult
	// Reason qualifies gone ("revoked", "expired") and forbidden ("email").
	Reason string
	Link   Link
	Groups []inventory.AssetGroup
}

// Resolve decides a redemption attempt and records it. Precedence:
// unknown token (not audited), revoked, expired, allow-list mismatch, allowed.
// Every decision other than not-found writes exactly one audit row; if that
// write fails the call fails with errkind.ErrStorageUnavailable.
func (r *Registry) Resolve(ctx context.Context, in ResolveInput) (Resolution, error) {
	const op = "share.Resolve"

	tok := strings.TrimSpace(in.Token)
	if tok == "" {
		r.metrics.ShareResolved(string(ResultNotFound))
		return Resolution{Result: ResultNotFound}, nil
	}

	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	link, err := r.store.GetByTokenHash(sctx, r.hasher.Hash(tok))
	cancel()
	if err != nil {
		if errkind.IsNotFound(err) {
			r.metrics.ShareResolved(string(ResultNotFound))
			r.log.Info("share.resolve.not_found", "ip", in.ClientIP)
			return Resolution{Result: ResultNotFound}, nil
		}
		return Resolution{}, errkind.Storage(op, err)
	}

	res := Resolution{Link: link}
	var outcome audit.Outcome
	switch state := link.StateAt(r.now()); {
	case state == StateRevoked:
		res.Result, res.Reason, outcome = ResultGone, "revoked", audit.OutcomeGone
	case state == StateExpired:
		res.Result, res.Reason, outcome = ResultGone, "expired", audit.OutcomeGone
	case !link.Allows(in.Email):
		res.Result, res.Reason, outcome = ResultForbidden, "email", audit.OutcomeForbidden
	default:
		res.Result, outcome = ResultAllowed, audit.OutcomeAllowed
		groups, err := r.groups(ctx, link)
		if err != nil {
			return Resolution{}, errkind.Storage(op, err)
		}
		res.Groups = groups
	}

	if _, err := r.auditor.Record(ctx, audit.RecordInput{
		ShareLinkID: link.ID,
		Email:       in.Email,
		ClientIP:    in.ClientIP,
		UserAgent:   in.UserAgent,
		Outcome:     outcome,
	}); err != nil {
		r.log.Error("share.resolve.audit.fail", "id", link.ID, "result", res.Result, "err", err)
		return Resolution{}, errkind.StorageError{Op: op, Err: err}
	}

	r.metrics.ShareResolved(string(res.Result))
	r.log.Info("share.resolve."+string(res.Result), "id", link.ID, "reason", res.Reason, "ip", in.ClientIP)
	return res, nil
}

// groups materializes the asset groups a link exposes.
func (r *Registry) groups(ctx context.Context, link Link) ([]inventory.AssetGroup, error) {
	switch link.Scope {
	case ScopeSingle:
		if len(link.Targets) == 0 {
			return nil, errkind.OpError{Op: "share.groups", Kind: errkind.ErrInvalidScope, Msg: "single link without target"}
		}
		assets, err := r.findByOwner(ctx, link.Targets[0])
		if err != nil {
			return nil, err
		}
		return []inventory.AssetGroup{{Owner: link.Targets[0], Assets: assets}}, nil

	case ScopeMultiple:
		return r.collect(ctx, link.Targets)

	case ScopeAll:
		sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		owners, err := r.assets.ListOwners(sctx)
		cancel()
		if err != nil {
			return nil, err
		}
		return r.collect(ctx, owners)

	default:
		return nil, errkind.OpError{Op: "share.groups", Kind: errkind.ErrInvalidScope, Msg: "unknown scope"}
	}
}

// collect returns one group per owner, in order, skipping owners with no assets.
func (r *Registry) collect(ctx context.Context, owners []string) ([]inventory.AssetGroup, error) {
	out := make([]inventory.AssetGroup, 0, len(owners))
	for _, owner := range owners {
		assets, err := r.findByOwner(ctx, owner)
		if err != nil {
			return nil, err
		}
		if len(assets) == 0 {
			continue
		}
		out = append(out, inventory.AssetGroup{Owner: owner, Assets: assets})
	}
	return out, nil
}

func (r *Registry) findByOwner(ctx context.Context, owner string) ([]inventory.Asset, error) {
	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.assets.FindAssetsByOwner(sctx, owner)
}
