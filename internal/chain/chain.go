// Package chain implements the sequential signer state machine. Every
// function is pure: it takes a snapshot of a document's status and slots and
// returns the Transition a store must apply atomically, leaving the inputs
// untouched.
package chain

import (
	"fmt"
	"time"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/model"
)

// Assignment is one requested slot.
type Assignment struct {
	UserID       string           `json:"userId"`
	SigningOrder int              `json:"signingOrder"`
	Signature    *model.Placement `json:"signature,omitempty"`
	TitleBox     *model.Rect      `json:"titleBox,omitempty"`
	DateBox      *model.Rect      `json:"dateBox,omitempty"`
}

// SignEvent carries what is captured when a slot is signed.
type SignEvent struct {
	Image string
	// Placement overrides the slot's predefined placement when set.
	Placement *model.Placement
	At        time.Time
	IPAddress string
	UserAgent string
}

// RejectEvent carries what is captured when a slot is rejected.
type RejectEvent struct {
	Reason    string
	At        time.Time
	IPAddress string
	UserAgent string
}

// Transition is the set of changes produced by one operation.
type Transition struct {
	// Status is the new document status. Empty leaves it unchanged.
	Status model.AFEStatus
	// Replace means Signers is the complete new slot set.
	Replace bool
	// Signers are the slots written by this transition.
	Signers []model.Signer
	// Acted is the slot that signed or rejected.
	Acted *model.Signer
	// Activated is the slot promoted to ACTIVE, if any.
	Activated *model.Signer
	// Completed is set when the last slot signed.
	Completed bool
	// Delete removes the document and its slots.
	Delete bool
}

// ValidateAssignments checks a requested slot list. exists reports whether a
// user id is known to the directory.
func ValidateAssignments(list []Assignment, exists func(userID string) bool) error {
	const op = "assign signers"
	if len(list) == 0 {
		return apperr.Validation(op, "at least one signer is required")
	}
	orders := make(map[int]bool, len(list))
	users := make(map[string]bool, len(list))
	for _, a := range list {
		if a.UserID == "" {
			return apperr.Validation(op, "signer user id is required")
		}
		if a.SigningOrder <= 0 {
			return apperr.Validation(op, "signing order must be positive, got %d", a.SigningOrder)
		}
		if orders[a.SigningOrder] {
			return apperr.Validation(op, "duplicate signing order %d", a.SigningOrder)
		}
		orders[a.SigningOrder] = true
		if users[a.UserID] {
			return apperr.Validation(op, "user %s is assigned more than once", a.UserID)
		}
		users[a.UserID] = true
		if a.Signature != nil && !a.Signature.Valid() {
			return apperr.Validation(op, "invalid signature placement for order %d", a.SigningOrder)
		}
		if exists != nil && !exists(a.UserID) {
			return apperr.Validation(op, "unknown user %s", a.UserID)
		}
	}
	return nil
}

// Assign replaces the slot set of a DRAFT document. The lowest order becomes
// ACTIVE and the document moves to PENDING. newID mints slot ids.
func Assign(afeID string, status model.AFEStatus, current []model.Signer, list []Assignment, now time.Time, newID func() string) (Transition, error) {
	const op = "assign signers"
	if status != model.StatusDraft {
		return Transition{}, apperr.State(op, "signers can only be assigned while the AFE is a draft (status %s)", status)
	}
	for _, s := range current {
		if s.Status == model.SignerSigned {
			return Transition{}, apperr.State(op, "signers cannot be changed after signing has started")
		}
	}
	if err := ValidateAssignments(list, nil); err != nil {
		return Transition{}, err
	}
	slots := make([]model.Signer, 0, len(list))
	for _, a := range list {
		slots = append(slots, model.Signer{
			ID:           newID(),
			AFEID:        afeID,
			UserID:       a.UserID,
			SigningOrder: a.SigningOrder,
			Status:       model.SignerPending,
			Signature:    a.Signature,
			TitleBox:     a.TitleBox,
			DateBox:      a.DateBox,
			CreatedAt:    now,
		})
	}
	model.SortSigners(slots)
	slots = model.CloneSigners(slots)
	slots[0].Status = model.SignerActive
	first := slots[0]
	return Transition{
		Status:    model.StatusPending,
		Replace:   true,
		Signers:   slots,
		Activated: &first,
	}, nil
}

// Sign marks the caller's ACTIVE slot SIGNED and promotes the next slot, or
// completes the chain when none is left.
func Sign(status model.AFEStatus, signers []model.Signer, userID string, ev SignEvent) (Transition, error) {
	const op = "sign"
	if !status.Signable() {
		return Transition{}, apperr.State(op, "this AFE cannot be signed in its current state (%s)", status)
	}
	slots := sorted(signers)
	idx, err := turn(op, slots, userID)
	if err != nil {
		return Transition{}, err
	}
	if ev.Image == "" {
		return Transition{}, apperr.Validation(op, "signature is required")
	}
	if ev.Placement != nil && !ev.Placement.Valid() {
		return Transition{}, apperr.Validation(op, "invalid signature placement")
	}

	signed := slots[idx]
	signed.Status = model.SignerSigned
	at := ev.At
	signed.SignedAt = &at
	signed.SignatureImage = ev.Image
	signed.IPAddress = ev.IPAddress
	signed.UserAgent = ev.UserAgent
	if ev.Placement != nil {
		p := *ev.Placement
		signed.Signature = &p
	}

	t := Transition{Signers: []model.Signer{signed}, Acted: &signed}
	if next := nextPending(slots, signed.SigningOrder); next >= 0 {
		promoted := slots[next]
		promoted.Status = model.SignerActive
		t.Signers = append(t.Signers, promoted)
		t.Activated = &promoted
		t.Status = model.StatusPartiallySigned
		return t, nil
	}
	t.Status = model.StatusFullySigned
	t.Completed = true
	return t, nil
}

// Reject marks the caller's ACTIVE slot REJECTED and ends the chain.
func Reject(status model.AFEStatus, signers []model.Signer, userID string, ev RejectEvent) (Transition, error) {
	const op = "reject"
	if !status.Signable() {
		return Transition{}, apperr.State(op, "this AFE cannot be rejected in its current state (%s)", status)
	}
	slots := sorted(signers)
	idx, err := turn(op, slots, userID)
	if err != nil {
		return Transition{}, err
	}
	rejected := slots[idx]
	rejected.Status = model.SignerRejected
	at := ev.At
	rejected.SignedAt = &at
	rejected.IPAddress = ev.IPAddress
	rejected.UserAgent = ev.UserAgent
	return Transition{
		Status:  model.StatusRejected,
		Signers: []model.Signer{rejected},
		Acted:   &rejected,
	}, nil
}

// Cancel ends the chain from any state other than FULLY_SIGNED or CANCELLED.
func Cancel(status model.AFEStatus) (Transition, error) {
	if status == model.StatusFullySigned || status == model.StatusCancelled {
		return Transition{}, apperr.State("cancel", "an AFE that is %s cannot be cancelled", status)
	}
	return Transition{Status: model.StatusCancelled}, nil
}

// Remind returns the slot to remind. Only PENDING documents qualify; a
// PARTIALLY_SIGNED document with an active signer is refused as well.
func Remind(status model.AFEStatus, signers []model.Signer) (model.Signer, error) {
	const op = "remind"
	if status != model.StatusPending {
		return model.Signer{}, apperr.State(op, "reminders can only be sent for pending AFEs (status %s)", status)
	}
	active, ok := Active(signers)
	if !ok {
		return model.Signer{}, apperr.State(op, "no active signer to remind")
	}
	return active, nil
}

// Delete allows removing a document that never left DRAFT.
func Delete(status model.AFEStatus) (Transition, error) {
	if status != model.StatusDraft {
		return Transition{}, apperr.State("delete", "only draft AFEs can be deleted (status %s)", status)
	}
	return Transition{Delete: true}, nil
}

// Active returns the ACTIVE slot.
func Active(signers []model.Signer) (model.Signer, bool) {
	for _, s := range signers {
		if s.Status == model.SignerActive {
			return s, true
		}
	}
	return model.Signer{}, false
}

// Apply returns the slot set after t, keyed by slot id.
func Apply(signers []model.Signer, t Transition) []model.Signer {
	if t.Delete {
		return nil
	}
	if t.Replace {
		return model.CloneSigners(t.Signers)
	}
	out := model.CloneSigners(signers)
	for _, changed := range t.Signers {
		for i := range out {
			if out[i].ID == changed.ID {
				out[i] = changed.Clone()
			}
		}
	}
	model.SortSigners(out)
	return out
}

// CanTransition reports whether the document may move from one status to
// another.
func CanTransition(from, to model.AFEStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case model.StatusPending:
		return from == model.StatusDraft
	case model.StatusPartiallySigned, model.StatusFullySigned:
		return from.Signable()
	case model.StatusRejected:
		return from.Signable()
	case model.StatusCancelled:
		return true
	}
	return false
}

// CheckInvariants verifies sequential activation and the no-skip rule.
func CheckInvariants(signers []model.Signer) error {
	slots := sorted(signers)
	active := 0
	for i, s := range slots {
		if s.Status == model.SignerActive {
			active++
			for _, lower := range slots[:i] {
				if lower.Status.Open() {
					return fmt.Errorf("slot %d is active while slot %d is %s", s.SigningOrder, lower.SigningOrder, lower.Status)
				}
			}
		}
		if s.Status == model.SignerSigned {
			for _, lower := range slots[:i] {
				if lower.Status != model.SignerSigned {
					return fmt.Errorf("slot %d is signed while slot %d is %s", s.SigningOrder, lower.SigningOrder, lower.Status)
				}
			}
		}
	}
	if active > 1 {
		return fmt.Errorf("%d slots are active", active)
	}
	return nil
}

func turn(op string, slots []model.Signer, userID string) (int, error) {
	idx := -1
	for i, s := range slots {
		if s.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, apperr.Authorization(op, "you are not a signer on this AFE")
	}
	if slots[idx].Status != model.SignerActive {
		return -1, apperr.Authorization(op, "it is not your turn to sign this AFE")
	}
	for _, lower := range slots[:idx] {
		if lower.Status != model.SignerSigned {
			return -1, apperr.Authorization(op, "previous signers have not completed signing")
		}
	}
	return idx, nil
}

func nextPending(slots []model.Signer, after int) int {
	for i, s := range slots {
		if s.SigningOrder > after && s.Status == model.SignerPending {
			return i
		}
	}
	return -1
}

func sorted(signers []model.Signer) []model.Signer {
	out := model.CloneSigners(signers)
	model.SortSigners(out)
	return out
}
