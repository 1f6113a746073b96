package registration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"user-directory/internal/config"
	"user-directory/internal/identity"
	"user-directory/internal/logging"
)

// Input is the validated registration request handed to the core. Field
// syntax (lengths, types) has already been checked by the transport layer;
// the guard applies policy and abuse checks only.
type Input struct {
	Username    string
	Password    string
	Consent     bool
	Email       string
	Fingerprint string
	Invite      string
	DateOfBirth string // YYYY-MM-DD
	CaptchaKey  string
	ClientIP    string
}

// GuardStore is the subset of the account store the guard needs.
type GuardStore interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	FingerprintSeen(ctx context.Context, fingerprint string) (bool, error)
}

// OriginClassifier decides whether an address is a proxy/VPN origin.
type OriginClassifier interface {
	IsProxy(ctx context.Context, ip string) (bool, error)
}

// CaptchaChecker verifies a solved challenge key with the provider.
type CaptchaChecker interface {
	Verify(ctx context.Context, key, remoteIP string) bool
}

// Guard runs the pre-creation policy and anti-abuse checks in a fixed order,
// short-circuiting on the first failure: cheap policy gates first, then the
// checks that cost lookups.
type Guard struct {
	log     *slog.Logger
	policy  config.RegisterPolicy
	store   GuardStore
	origin  OriginClassifier // nil when proxy blocking is off
	captcha CaptchaChecker   // nil when captcha is off
	now     func() time.Time
}

func NewGuard(log *slog.Logger, policy config.RegisterPolicy, store GuardStore, origin OriginClassifier, captcha CaptchaChecker) *Guard {
	return &Guard{
		log:     log,
		policy:  policy,
		store:   store,
		origin:  origin,
		captcha: captcha,
		now:     time.Now,
	}
}

// Evaluate applies the checks of the registration policy to in. On success
// it returns the canonical email to store ("" when none was supplied). The
// error is a FieldErrors for rejections or a *Challenge when the client must
// solve a captcha first.
func (g *Guard) Evaluate(ctx context.Context, in *Input) (string, error) {
	// 1. registration must be administratively open
	if !g.policy.Enabled {
		return "", fieldError("email", CodeRegistrationDisabled, "New user registration is disabled")
	}

	// 2. terms-of-service consent
	if !in.Consent {
		return "", fieldError("consent", CodeConsentRequired, "You must agree to the Terms of Service")
	}

	// 3. invite gate
	if g.policy.RequireInvite && in.Invite == "" {
		return "", fieldError("email", CodeInviteOnly, "You must be invited to register")
	}

	// 4. proxy/VPN origin
	if g.policy.BlockProxies && g.origin != nil && in.ClientIP != "" {
		isProxy, err := g.origin.IsProxy(ctx, in.ClientIP)
		if err != nil {
			return "", fmt.Errorf("origin classification: %w", err)
		}
		if isProxy {
			g.log.Info("registration_blocked_proxy", "ip", in.ClientIP)
			return "", fieldError("ip", CodeProxyBlocked, "Registration from proxy or VPN origins is not allowed")
		}
	}

	// 5. email policy
	canonicalEmail := ""
	if in.Email != "" {
		canon, ok := identity.CanonicalizeEmail(in.Email)
		if !ok {
			return "", fieldError("email", CodeEmailInvalid, "Invalid email address")
		}
		taken, err := g.store.EmailTaken(ctx, canon)
		if err != nil {
			return "", fmt.Errorf("email check: %w", err)
		}
		if taken {
			g.log.Info("registration_duplicate_email", "email", logging.MaskEmail(canon))
			return "", fieldError("email", CodeEmailAlreadyUsed, "Email is already registered")
		}
		canonicalEmail = canon
	} else if g.policy.RequireEmail {
		return "", fieldError("email", CodeEmailRequired, "Email is required")
	}

	// 6. age policy
	if err := g.checkAge(in.DateOfBirth); err != nil {
		return "", err
	}

	// 7. multi-account policy
	if !g.policy.AllowMultipleAccounts && in.Fingerprint != "" {
		seen, err := g.store.FingerprintSeen(ctx, in.Fingerprint)
		if err != nil {
			return "", fmt.Errorf("fingerprint check: %w", err)
		}
		if seen {
			g.log.Info("registration_fingerprint_reuse", "fingerprint", in.Fingerprint)
			return "", fieldError("fingerprint", CodeMultipleAccounts, "You are not allowed to create multiple accounts")
		}
	}

	// 8. captcha gate: a distinct outcome, not a rejection
	if g.policy.Captcha.Enabled {
		if in.CaptchaKey == "" {
			return "", &Challenge{SiteKey: g.policy.Captcha.SiteKey, Service: g.policy.Captcha.Service}
		}
		if g.captcha != nil && !g.captcha.Verify(ctx, in.CaptchaKey, in.ClientIP) {
			g.log.Info("registration_captcha_rejected", "ip", in.ClientIP)
			return "", &Challenge{SiteKey: g.policy.Captcha.SiteKey, Service: g.policy.Captcha.Service}
		}
	}

	return canonicalEmail, nil
}

// checkAge enforces the date-of-birth policy. Presence and syntax are
// checked independently of MinimumAge: an instance may demand a birth date
// without imposing an age floor.
func (g *Guard) checkAge(dateOfBirth string) error {
	if dateOfBirth == "" {
		if g.policy.RequireDateOfBirth {
			return fieldError("date_of_birth", CodeDateOfBirthRequired, "Date of birth is required")
		}
		return nil
	}

	dob, err := time.Parse("2006-01-02", dateOfBirth)
	if err != nil {
		return fieldError("date_of_birth", CodeDateOfBirthInvalid, "Date of birth must be YYYY-MM-DD")
	}

	if g.policy.MinimumAge <= 0 {
		return nil
	}

	cutoff := g.now().AddDate(-g.policy.MinimumAge, 0, 0)
	if dob.After(cutoff) {
		return fieldError("date_of_birth", CodeDateOfBirthUnderage,
			fmt.Sprintf("You must be at least %d years old", g.policy.MinimumAge))
	}
	return nil
}
