package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/notify"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
)

// AssignSigners sets the signing chain of a DRAFT document.
func (s *Service) AssignSigners(ctx context.Context, actor model.Actor, afeID string, list []chain.Assignment) (*model.AFE, error) {
	return s.assign(ctx, actor, afeID, list, false)
}

// ReassignSigners replaces the chain of a DRAFT document in which nobody has
// signed yet.
func (s *Service) ReassignSigners(ctx context.Context, actor model.Actor, afeID string, list []chain.Assignment) (*model.AFE, error) {
	return s.assign(ctx, actor, afeID, list, true)
}

func (s *Service) assign(ctx context.Context, actor model.Actor, afeID string, list []chain.Assignment, reassign bool) (*model.AFE, error) {
	const op = "assign signers"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.UserID)
	}
	known, err := s.store.UsersExist(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	// Document state is checked before the user lookup is applied, so a
	// locked document reports a state error whatever the list holds.
	t, err := s.store.Mutate(ctx, afeID, func(afe model.AFE, signers []model.Signer) (chain.Transition, error) {
		t, err := chain.Assign(afe.ID, afe.Status, signers, list, now, s.newID)
		if err != nil {
			return chain.Transition{}, err
		}
		if err := chain.ValidateAssignments(list, func(id string) bool { return known[id] }); err != nil {
			return chain.Transition{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, model.EntityAFE, afeID, model.ActionSignersAssigned, map[string]any{
		"signerCount": len(list),
		"reassigned":  reassign,
	})
	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		return nil, err
	}
	if t.Activated != nil {
		s.notifyActivated(ctx, afe, t.Activated.UserID)
	}
	return afe, nil
}

// SignInput carries a signature submission.
type SignInput struct {
	// Confirmed must be set: the signer acknowledged the document.
	Confirmed bool `json:"confirmed"`
	// Signature is a PNG data URL. When empty and UseSaved is set the
	// signer's saved signature is used.
	Signature string           `json:"signatureImage"`
	UseSaved  bool             `json:"useSavedSignature"`
	Placement *model.Placement `json:"placement,omitempty"`
}

// SignResult reports the document status after a signature.
type SignResult struct {
	Status  model.AFEStatus `json:"status"`
	Message string          `json:"message"`
}

// Sign records the actor's signature on their ACTIVE slot.
func (s *Service) Sign(ctx context.Context, actor model.Actor, afeID string, in SignInput) (*SignResult, error) {
	const op = "sign"
	if err := requireUser(op, actor); err != nil {
		return nil, err
	}
	if !in.Confirmed {
		return nil, apperr.Validation(op, "you must confirm before signing")
	}
	image := in.Signature
	if image == "" && in.UseSaved {
		u, err := s.store.GetUser(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if u.SavedSignature == nil {
			return nil, apperr.Validation(op, "no saved signature on file")
		}
		image = *u.SavedSignature
	}
	if image == "" {
		return nil, apperr.Validation(op, "signature is required")
	}
	if !pdfutil.ValidSignatureDataURL(image) {
		return nil, apperr.Validation(op, "signature must be a PNG data URL")
	}
	ev := chain.SignEvent{
		Image:     image,
		Placement: in.Placement,
		At:        s.now(),
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	}
	t, err := s.store.Mutate(ctx, afeID, func(afe model.AFE, signers []model.Signer) (chain.Transition, error) {
		return chain.Sign(afe.Status, signers, actor.ID, ev)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, model.EntityAFE, afeID, model.ActionSigned, map[string]any{
		"signingOrder": t.Acted.SigningOrder,
		"signerName":   actor.Name,
	})

	result := &SignResult{Status: t.Status, Message: "Signature recorded successfully"}
	if t.Completed {
		result.Message = "AFE has been fully signed"
	}
	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		// The signature is committed; only the follow-ups are lost.
		s.log.Error("reload after sign failed", zap.String("afe_id", afeID), zap.Error(err))
		return result, nil
	}
	if t.Activated != nil {
		s.notifyActivated(ctx, afe, t.Activated.UserID)
	}
	if t.Completed {
		s.complete(ctx, afe)
	}
	return result, nil
}

// RejectInput carries an optional reason.
type RejectInput struct {
	Reason string `json:"reason,omitempty"`
}

// Reject ends the chain at the actor's ACTIVE slot.
func (s *Service) Reject(ctx context.Context, actor model.Actor, afeID string, in RejectInput) (*model.AFE, error) {
	const op = "reject"
	if err := requireUser(op, actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	ev := chain.RejectEvent{
		Reason:    reason,
		At:        s.now(),
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	}
	t, err := s.store.Mutate(ctx, afeID, func(afe model.AFE, signers []model.Signer) (chain.Transition, error) {
		return chain.Reject(afe.Status, signers, actor.ID, ev)
	})
	if err != nil {
		return nil, err
	}
	meta := map[string]any{"signingOrder": t.Acted.SigningOrder, "signerName": actor.Name}
	if reason != "" {
		meta["reason"] = reason
	}
	s.audit.Record(ctx, actor, model.EntityAFE, afeID, model.ActionRejected, meta)

	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		return nil, err
	}
	if afe.CreatedBy != nil {
		s.notifier.Notify(ctx, notify.Message{
			Kind: notify.KindRejected,
			To:   afe.CreatedBy.Email,
			Data: notify.Data{AFEID: afe.ID, AFEName: afe.Name, RejectedBy: actor.Name, Reason: reason},
		})
	}
	return afe, nil
}

// Remind re-sends the activation notice to the ACTIVE signer. Only PENDING
// documents qualify, so a PARTIALLY_SIGNED chain cannot be nudged.
func (s *Service) Remind(ctx context.Context, actor model.Actor, afeID string) (*model.Signer, error) {
	const op = "remind"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		return nil, err
	}
	active, err := chain.Remind(afe.Status, afe.Signers)
	if err != nil {
		return nil, err
	}
	if active.User == nil {
		return nil, apperr.NotFound(op, "active signer's user not found")
	}
	s.notifier.Notify(ctx, notify.Message{
		Kind: notify.KindReminder,
		To:   active.User.Email,
		Data: notify.Data{AFEID: afe.ID, AFEName: afe.Name, SignerName: active.User.Name},
	})
	s.audit.Record(ctx, actor, model.EntityAFE, afeID, model.ActionReminderSent, map[string]any{
		"signerId":   active.UserID,
		"signerName": active.User.Name,
	})
	return &active, nil
}

func (s *Service) notifyActivated(ctx context.Context, afe *model.AFE, userID string) {
	for _, slot := range afe.Signers {
		if slot.UserID != userID || slot.User == nil {
			continue
		}
		s.notifier.Notify(ctx, notify.Message{
			Kind: notify.KindSignerActivated,
			To:   slot.User.Email,
			Data: notify.Data{AFEID: afe.ID, AFEName: afe.Name, SignerName: slot.User.Name},
		})
		return
	}
	s.log.Warn("activated signer has no user record", zap.String("afe_id", afe.ID), zap.String("user_id", userID))
}
