package auth

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/identity"
	"github.com/felixgeelhaar/servicehub/internal/log"
)

// OTPTTL is how long a sent verification code can be confirmed.
const OTPTTL = 5 * time.Minute

// PhoneState is the position of a PhoneStrategy in the OTP exchange.
type PhoneState int

const (
	PhoneIdle PhoneState = iota
	PhoneOTPSent
	PhoneConfirmed
)

// String returns the state name.
func (s PhoneState) String() string {
	switch s {
	case PhoneIdle:
		return "idle"
	case PhoneOTPSent:
		return "otp_sent"
	case PhoneConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// PromptFunc asks the user for a value. It returns errors.ErrCanceled when
// the user dismisses the prompt.
type PromptFunc func(ctx context.Context) (string, error)

// PhoneOption configures a PhoneStrategy.
type PhoneOption func(*PhoneStrategy)

// WithPhonePrompts sets the prompts used when the strategy runs through SignIn.
func WithPhonePrompts(phone, code PromptFunc) PhoneOption {
	return func(s *PhoneStrategy) {
		s.promptPhone = phone
		s.promptCode = code
	}
}

// WithOTPTTL overrides how long a pending confirmation stays valid.
func WithOTPTTL(ttl time.Duration) PhoneOption {
	return func(s *PhoneStrategy) {
		s.ttl = ttl
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) PhoneOption {
	return func(s *PhoneStrategy) {
		s.now = now
	}
}

// WithPhoneLogger sets the logger.
func WithPhoneLogger(logger *log.Logger) PhoneOption {
	return func(s *PhoneStrategy) {
		s.logger = logger
	}
}

// PhoneStrategy signs in with an SMS one-time code.
//
// The exchange moves Idle -> OTPSent -> Confirmed. A failed confirmation or
// an expired code returns it to Idle; a malformed code is rejected locally
// and leaves the pending confirmation in place.
type PhoneStrategy struct {
	provider    identity.Provider
	promptPhone PromptFunc
	promptCode  PromptFunc
	ttl         time.Duration
	now         func() time.Time
	logger      *log.Logger

	mu           sync.Mutex
	state        PhoneState
	phone        string
	confirmation identity.Confirmation
	sentAt       time.Time
}

// NewPhoneStrategy creates an idle phone strategy.
func NewPhoneStrategy(provider identity.Provider, opts ...PhoneOption) *PhoneStrategy {
	s := &PhoneStrategy{
		provider: provider,
		ttl:      OTPTTL,
		now:      time.Now,
		logger:   log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth", "provider", ProviderPhone)
	return s
}

// Name returns "phone".
func (s *PhoneStrategy) Name() string { return ProviderPhone }

// State returns the current state.
func (s *PhoneStrategy) State() PhoneState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Phone returns the number the pending code was sent to.
func (s *PhoneStrategy) Phone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phone
}

// SendOTP validates phone and asks the provider to text a code to it.
// Sending again replaces any pending confirmation.
func (s *PhoneStrategy) SendOTP(ctx context.Context, phone string) error {
	phone = NormalizePhone(phone)
	if err := ValidatePhone(phone); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	confirmation, err := s.provider.SendVerificationCode(ctx, phone)
	if err != nil {
		s.reset()
		return providerError(ProviderPhone, err)
	}

	s.state = PhoneOTPSent
	s.phone = phone
	s.confirmation = confirmation
	s.sentAt = s.now()
	s.logger.Debug("verification code sent")
	return nil
}

// ConfirmOTP confirms the pending code and returns the signed-in result.
func (s *PhoneStrategy) ConfirmOTP(ctx context.Context, code string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != PhoneOTPSent || s.confirmation == nil {
		return nil, errors.ErrNoConfirmationPending
	}
	if s.now().Sub(s.sentAt) > s.ttl {
		s.reset()
		return nil, errors.New(errors.ErrCodeConfirmationExpired, "the verification code has expired").
			WithSuggestion("Request a new code and try again")
	}
	if err := ValidateOTP(code); err != nil {
		return nil, err
	}

	user, err := s.confirmation.Confirm(ctx, code)
	if err != nil {
		s.reset()
		return nil, providerError(ProviderPhone, err)
	}

	result, err := resultFromUser(ctx, ProviderPhone, user)
	if err != nil {
		s.reset()
		return nil, err
	}
	if result.Phone == "" {
		result.Phone = s.phone
	}

	s.state = PhoneConfirmed
	s.confirmation = nil
	s.logger.Debug("phone number confirmed", "new_user", result.IsNewUser)
	return result, nil
}

// Reset abandons any pending confirmation.
func (s *PhoneStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *PhoneStrategy) reset() {
	s.state = PhoneIdle
	s.phone = ""
	s.confirmation = nil
	s.sentAt = time.Time{}
}

// ObtainCredential prompts for the number, sends the code and prompts for it.
func (s *PhoneStrategy) ObtainCredential(ctx context.Context) (*Credential, error) {
	if s.promptPhone == nil || s.promptCode == nil {
		return nil, errors.New(errors.ErrCodeProviderNotConfigured, "phone sign-in needs interactive prompts")
	}

	phone, err := s.promptPhone(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.SendOTP(ctx, phone); err != nil {
		return nil, err
	}

	code, err := s.promptCode(ctx)
	if err != nil {
		s.Reset()
		return nil, err
	}
	return &Credential{Provider: ProviderPhone, Phone: s.Phone(), Code: code}, nil
}

// ExchangeForToken confirms the code collected by ObtainCredential.
func (s *PhoneStrategy) ExchangeForToken(ctx context.Context, cred *Credential) (*Result, error) {
	return s.ConfirmOTP(ctx, cred.Code)
}
