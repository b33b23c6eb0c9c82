package signature

import (
	"ms-verify/internal/models"
	"ms-verify/internal/qrcodec"
)

// Strategy is one way of deciding that a presented signature is authentic.
// The ticket argument is nil when the scan never resolved to a stored row.
type Strategy interface {
	Name() string
	Verify(payload qrcodec.Payload, ticket *models.Ticket) bool
}

// StoredSignatureStrategy trusts the signature minted at issuance time and
// stored on the ticket row. Some scanning hardware mangles non-ASCII payload
// characters in transit, so recomputing the HMAC over the scanned text can
// reject genuine tickets; matching against the stored value sidesteps that.
type StoredSignatureStrategy struct{}

func (StoredSignatureStrategy) Name() string { return "stored" }

func (StoredSignatureStrategy) Verify(payload qrcodec.Payload, ticket *models.Ticket) bool {
	if ticket == nil || ticket.QRSignature == "" {
		return false
	}
	return equalSignatures(payload.Signature(), ticket.QRSignature)
}

// HMACStrategy recomputes the signature over the payload's canonical signing
// fields and compares it with the presented one.
type HMACStrategy struct {
	Signer *Signer
}

func (HMACStrategy) Name() string { return "hmac" }

func (s HMACStrategy) Verify(payload qrcodec.Payload, ticket *models.Ticket) bool {
	expected := s.Signer.SignFields(payload.SigningFields())
	return equalSignatures(payload.Signature(), expected)
}

// Verifier runs an ordered strategy chain and short-circuits on the first
// success. The stored-signature path must run before HMAC recomputation,
// see StoredSignatureStrategy.
type Verifier struct {
	strategies []Strategy
}

func NewVerifier(signer *Signer) *Verifier {
	return &Verifier{
		strategies: []Strategy{
			StoredSignatureStrategy{},
			HMACStrategy{Signer: signer},
		},
	}
}

// Verify reports whether any strategy accepts the payload. It returns the
// name of the accepting strategy for audit notes.
func (v *Verifier) Verify(payload qrcodec.Payload, ticket *models.Ticket) (bool, string) {
	for _, s := range v.strategies {
		if s.Verify(payload, ticket) {
			return true, s.Name()
		}
	}
	return false, ""
}
