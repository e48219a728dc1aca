package tests

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/carechat/server/internal/identity"
	"github.com/carechat/server/internal/notify"
	"gorm.io/gorm"
)

var otpCode = regexp.MustCompile(`<b>(\d{6})</b>`)

// CaptureSender is a notify.Sender that keeps every message in memory.
type CaptureSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *CaptureSender) SendHTML(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, notify.Message{To: to, Subject: subject, HTML: body})
	return nil
}

// LatestCode returns the code in the newest message sent to email.
func (s *CaptureSender) LatestCode(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].To != email {
			continue
		}
		if m := otpCode.FindStringSubmatch(s.sent[i].HTML); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Count returns how many messages were sent to email.
func (s *CaptureSender) Count(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.sent {
		if m.To == email {
			n++
		}
	}
	return n
}

// StaticIdentity answers every Google token with the same identity.
type StaticIdentity struct {
	Identity *identity.Identity
	Err      error
}

func (s *StaticIdentity) Verify(context.Context, string) (*identity.Identity, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Identity, nil
}

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, database *gorm.DB) error {
	err := database.WithContext(ctx).
		Exec("TRUNCATE TABLE device_keys, user_details, doctor_details, accounts RESTART IDENTITY CASCADE").Error
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
