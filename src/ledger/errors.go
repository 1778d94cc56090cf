package ledger

import "fmt"

// ValidationErrType enumerates the reasons for which a vertex, or a whole
// candidate set, is rejected. Rejections are values, not panics; the owning
// process drops the offending vertex and keeps running.
type ValidationErrType uint32

const (
	// InvalidSignature - the vertex or proof signature does not verify.
	InvalidSignature ValidationErrType = iota
	// HashMismatch - a recomputed vertex or payload hash disagrees with the
	// claimed value; tamper signal.
	HashMismatch
	// ReplayDetected - the engagement proof nonce was already recorded.
	ReplayDetected
	// CycleDetected - the parent-reference graph contains a cycle.
	CycleDetected
	// MissingReference - a non-genesis parent reference does not resolve.
	MissingReference
	// ConflictingApproval - the same payload hash is approved with two
	// different parent pairs.
	ConflictingApproval
	// DepthViolation - a vertex's depth does not strictly exceed its parents'.
	DepthViolation
	// AnchoringViolation - an anchored vertex has an unanchored non-genesis
	// parent, or its anchor timestamp precedes its creation.
	AnchoringViolation
	// ExpiredAttestation - the engagement proof timestamp is outside the
	// freshness window (too old or too far in the future).
	ExpiredAttestation
	// InvalidPayload - the payload type is not part of the closed union.
	InvalidPayload
)

// ValidationErr carries a rejection code, the hash of the offending vertex
// when it can be isolated, and a human-readable detail.
type ValidationErr struct {
	errType ValidationErrType
	hash    string
	detail  string
}

// NewValidationErr creates a ValidationErr for a specific vertex.
func NewValidationErr(errType ValidationErrType, hash, detail string) ValidationErr {
	return ValidationErr{
		errType: errType,
		hash:    hash,
		detail:  detail,
	}
}

// Error implements the error interface.
func (e ValidationErr) Error() string {
	m := ""
	switch e.errType {
	case InvalidSignature:
		m = "Invalid Signature"
	case HashMismatch:
		m = "Hash Mismatch"
	case ReplayDetected:
		m = "Replay Detected"
	case CycleDetected:
		m = "Cycle Detected"
	case MissingReference:
		m = "Missing Reference"
	case ConflictingApproval:
		m = "Conflicting Approval"
	case DepthViolation:
		m = "Depth Violation"
	case AnchoringViolation:
		m = "Anchoring Violation"
	case ExpiredAttestation:
		m = "Expired Or Future Attestation"
	case InvalidPayload:
		m = "Invalid Payload"
	}

	if e.hash != "" {
		return fmt.Sprintf("%s, %s, %s", m, e.hash, e.detail)
	}
	return fmt.Sprintf("%s, %s", m, e.detail)
}

// IsValidation checks that an error is of type ValidationErr and that its code
// matches the provided code.
func IsValidation(err error, t ValidationErrType) bool {
	vErr, ok := err.(ValidationErr)
	return ok && vErr.errType == t
}

// ErrMissingTips is returned by the builder when it is called before tip
// selection. This is a programmer error, not a validation outcome.
var ErrMissingTips = fmt.Errorf("build called without a tip selection")
