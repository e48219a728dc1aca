package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"html/template"
	"io"
	"math/big"
	"time"

	"github.com/carechat/server/internal/ephemeral"
	"github.com/carechat/server/internal/notify"
	"go.uber.org/zap"
)

const (
	otpPrefix = "OTP:"
	otpSpace  = 1_000_000
)

// OtpPurpose selects the TTL and wording of a dispatched code. The values match the
// "type" field clients send.
type OtpPurpose int

const (
	PurposeLoginStep2    OtpPurpose = 1
	PurposePasswordReset OtpPurpose = 2
)

// ParseOtpPurpose maps a wire value to a purpose.
func ParseOtpPurpose(v int) (OtpPurpose, error) {
	switch p := OtpPurpose(v); p {
	case PurposeLoginStep2, PurposePasswordReset:
		return p, nil
	}
	return 0, ErrUnknownOtpPurpose
}

// TTL is how long a code issued for p stays valid.
func (p OtpPurpose) TTL() time.Duration {
	switch p {
	case PurposeLoginStep2:
		return time.Minute
	case PurposePasswordReset:
		return 15 * time.Minute
	}
	return 0
}

func (p OtpPurpose) String() string {
	switch p {
	case PurposeLoginStep2:
		return "LOGIN_STEP2"
	case PurposePasswordReset:
		return "PASSWORD_RESET"
	}
	return fmt.Sprintf("OtpPurpose(%d)", int(p))
}

func (p OtpPurpose) subject() string {
	if p == PurposePasswordReset {
		return "Your password reset code"
	}
	return "Your account verification code"
}

var otpMessage = template.Must(template.New("otp").Parse(
	`<p>Hello,</p><p>Your OTP code is: <b>{{.Code}}</b></p>` +
		`<p>This code is valid for {{.Minutes}} minute{{if ne .Minutes 1}}s{{end}}.</p>`))

// Notifier accepts a message for asynchronous delivery.
type Notifier interface {
	Submit(msg notify.Message) bool
}

// OtpGate issues and checks one-time codes. At most one code is active per email.
type OtpGate struct {
	store    ephemeral.Store
	notifier Notifier
	log      *zap.Logger
	random   io.Reader
}

// NewOtpGate creates an OtpGate.
func NewOtpGate(store ephemeral.Store, notifier Notifier, log *zap.Logger) *OtpGate {
	return &OtpGate{store: store, notifier: notifier, log: log, random: rand.Reader}
}

// Generate stores a fresh uniformly random 6-digit code for email, replacing any earlier one.
func (g *OtpGate) Generate(ctx context.Context, email string, ttl time.Duration) (string, error) {
	n, err := rand.Int(g.random, big.NewInt(otpSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	if err := g.store.SetWithTTL(ctx, otpPrefix+email, code, ttl); err != nil {
		return "", fmt.Errorf("failed to store OTP: %w", err)
	}
	return code, nil
}

// Verify reports whether candidate matches the active code for email. It never
// consumes the code.
func (g *OtpGate) Verify(ctx context.Context, email, candidate string) (bool, error) {
	stored, found, err := g.store.Get(ctx, otpPrefix+email)
	if err != nil {
		return false, fmt.Errorf("failed to read OTP: %w", err)
	}
	if !found {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1, nil
}

// Invalidate removes the active code for email.
func (g *OtpGate) Invalidate(ctx context.Context, email string) error {
	if err := g.store.Delete(ctx, otpPrefix+email); err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}

// Dispatch generates a code for purpose and queues its delivery. It returns once the
// code is stored; delivery happens later and its failures are only logged.
func (g *OtpGate) Dispatch(ctx context.Context, email string, purpose OtpPurpose) error {
	if _, err := ParseOtpPurpose(int(purpose)); err != nil {
		return err
	}

	ttl := purpose.TTL()
	code, err := g.Generate(ctx, email, ttl)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	data := struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(ttl / time.Minute)}
	if err := otpMessage.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render OTP message: %w", err)
	}

	if !g.notifier.Submit(notify.Message{To: email, Subject: purpose.subject(), HTML: body.String()}) {
		g.log.Warn("otp delivery not queued",
			zap.String("email", notify.MaskEmail(email)),
			zap.Stringer("purpose", purpose),
		)
	}
	return nil
}
