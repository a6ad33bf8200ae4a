package core

import "errors"

// Error taxonomy for the execution host, identity stack, and storage
// migrator. Call sites wrap these sentinels with fmt.Errorf("...: %w", ...)
// to attach context; callers that need to branch on kind use errors.Is.
var (
	ErrUnknown                   = errors.New("unknown error")
	ErrCouldNotVerifySignature   = errors.New("could not verify signature")
	ErrDeserialization           = errors.New("deserialization error")
	ErrEndpointNotFound          = errors.New("endpoint not found")
	ErrModuleNotFound            = errors.New("module not found")
	ErrDuplicateEndpoint         = errors.New("duplicate endpoint")
	ErrCertificateExpired        = errors.New("certificate expired")
	ErrCertificateFinalNotLast   = errors.New("certificate final not last")
	ErrIdentityMismatch          = errors.New("identity mismatch")
	ErrStorageIO                 = errors.New("storage io error")
	ErrGuestTrap                 = errors.New("guest trap")
	ErrAddressAlreadyInstalled   = errors.New("address already installed")
	ErrEmptyDelegationChain      = errors.New("empty delegation chain")
	ErrDelegationLinkBroken      = errors.New("delegation link broken")
	ErrInvalidThreshold          = errors.New("invalid threshold")
	ErrConcurrentStorageRef      = errors.New("concurrent storage ref on same key")
)
