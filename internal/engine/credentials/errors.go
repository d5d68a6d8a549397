package credentials

import "errors"

// Verification failures. Callers must not tell them apart in responses.
var (
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrCredentialExpired = errors.New("credential_expired")
	ErrCredentialRevoked = errors.New("credential_revoked")
	ErrStoreUnavailable  = errors.New("store_unavailable")
)

var (
	ErrLimitExceeded = errors.New("creation_limit_exceeded")
	ErrNotFound      = errors.New("credential not found")
	ErrInvalidName   = errors.New("credential name must be 1-100 characters")
	ErrInvalidTier   = errors.New("tier cannot hold credentials")
	ErrInvalidExpiry = errors.New("expiry must be in the future")
)
