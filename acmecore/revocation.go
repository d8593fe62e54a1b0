package acmecore

// RevocationReason is a CRLReason code (RFC 5280 §5.3.1), carried as the
// optional "reason" field of an RFC 8555 §7.6 revocation request.
type RevocationReason int

const (
	RevocationUnspecified          RevocationReason = 0
	RevocationKeyCompromise        RevocationReason = 1
	RevocationCACompromise         RevocationReason = 2
	RevocationAffiliationChanged   RevocationReason = 3
	RevocationSuperseded           RevocationReason = 4
	RevocationCessationOfOperation RevocationReason = 5
	RevocationCertificateHold      RevocationReason = 6
	RevocationRemoveFromCRL        RevocationReason = 8
	RevocationPrivilegeWithdrawn   RevocationReason = 9
	RevocationAACompromise         RevocationReason = 10
)

// revocationReasonNames mirrors the CA-side table this client's teacher
// carries for its own revocation handling; useful for logging/diagnostics.
var revocationReasonNames = map[RevocationReason]string{
	RevocationUnspecified:          "unspecified",
	RevocationKeyCompromise:        "keyCompromise",
	RevocationCACompromise:         "cACompromise",
	RevocationAffiliationChanged:   "affiliationChanged",
	RevocationSuperseded:           "superseded",
	RevocationCessationOfOperation: "cessationOfOperation",
	RevocationCertificateHold:      "certificateHold",
	RevocationRemoveFromCRL:        "removeFromCRL",
	RevocationPrivilegeWithdrawn:   "privilegeWithdrawn",
	RevocationAACompromise:         "aAcompromise",
}

// String returns the CRLReason's conventional name, or "unknown" if r is
// not one of the defined codes.
func (r RevocationReason) String() string {
	if name, ok := revocationReasonNames[r]; ok {
		return name
	}
	return "unknown"
}
