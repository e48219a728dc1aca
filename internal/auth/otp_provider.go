package auth

import "context"

// OtpProvider is the view of the OTP gate the orchestrator depends on
type OtpProvider interface {
	Verify(ctx context.Context, email, candidate string) (bool, error)
	Invalidate(ctx context.Context, email string) error
	Dispatch(ctx context.Context, email string, purpose OtpPurpose) error
}

var _ OtpProvider = (*OtpGate)(nil)
