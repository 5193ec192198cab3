package models

import "strings"

// SignaturePolicy decides whether a submitted signature counts toward the
// form. It returns a reason whenever valid is false.
type SignaturePolicy interface {
	Evaluate(form *Form, sig Signature) (valid bool, reason string)
}

// SignaturePolicyFunc adapts a function to SignaturePolicy.
type SignaturePolicyFunc func(form *Form, sig Signature) (bool, string)

func (fn SignaturePolicyFunc) Evaluate(form *Form, sig Signature) (bool, string) {
	return fn(form, sig)
}

// DefaultSignaturePolicy rejects empty signers, unknown signature types and a
// second valid signature by the same signer (case-insensitive) on the same
// event.
type DefaultSignaturePolicy struct{}

func (DefaultSignaturePolicy) Evaluate(form *Form, sig Signature) (bool, string) {
	if strings.TrimSpace(sig.Signer) == "" {
		return false, "signer is required"
	}
	if !sig.Type.IsKnown() {
		return false, "unknown signature type " + string(sig.Type)
	}
	for _, existing := range form.Signatures {
		if existing.Valid && existing.EventID == sig.EventID && strings.EqualFold(existing.Signer, sig.Signer) {
			return false, "duplicate signer for event"
		}
	}
	return true, ""
}
