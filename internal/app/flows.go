package app

import (
	"context"
	"errors"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

// Bootstrap decides the first screen after a cold start. The profile is
// always fetched remotely; the cached copy is never consulted. Any failure
// lands on the welcome screen.
func (a *App) Bootstrap(ctx context.Context) (Outcome, *entity.User) {
	unauthenticated := func(reason string, err error) (Outcome, *entity.User) {
		a.logger.Infow("bootstrap unauthenticated", "reason", reason, "err", err)
		a.state.Clear()
		return OutcomeUnauthenticated, nil
	}

	cctx, cancel := a.call(ctx)
	s, err := a.auth.CurrentSession(cctx)
	cancel()
	if err != nil {
		return unauthenticated("session error", err)
	}
	if s == nil {
		return unauthenticated("no session", nil)
	}

	cctx, cancel = a.call(ctx)
	u, err := a.users.GetByAuthID(cctx, s.User.ID)
	cancel()
	if err != nil {
		return unauthenticated("profile lookup failed", err)
	}

	a.remember(u)
	if !u.OnboardingCompleted {
		return OutcomeOnboarding, u.Clone()
	}
	return OutcomeReady, u.Clone()
}

// Register creates the auth identity and then the profile. A pending email
// confirmation ends the flow without a profile. A profile failure leaves the
// auth identity in place.
func (a *App) Register(ctx context.Context, email, password string) (*Result, error) {
	release, err := a.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	cctx, cancel := a.call(ctx)
	reg, err := a.auth.Register(cctx, email, password)
	cancel()
	if err != nil {
		return nil, err
	}
	if reg.ConfirmationPending() {
		a.logger.Infow("registration awaiting email confirmation", "auth_id", reg.Identity.ID)
		return &Result{Route: RouteWelcome, ConfirmationPending: true}, nil
	}

	cctx, cancel = a.call(ctx)
	u, err := a.users.Create(cctx, reg.Identity.ID, reg.Identity.Email, "", "")
	cancel()
	if err != nil {
		a.logger.Warnw("profile creation failed after sign-up", "auth_id", reg.Identity.ID, "err", err)
		return nil, err
	}
	a.remember(u)
	return &Result{Route: RouteOnboarding, User: u.Clone()}, nil
}

// Login signs in with email and password and loads the profile. A missing
// profile is an error here; it is never created by this flow.
func (a *App) Login(ctx context.Context, email, password string) (*Result, error) {
	release, err := a.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	cctx, cancel := a.call(ctx)
	s, err := a.auth.Login(cctx, email, password)
	cancel()
	if err != nil {
		return nil, err
	}
	return a.finishLogin(ctx, s, nil)
}

// OAuthLogin exchanges a provider credential for a session. On the first
// sign-in the profile is created from the provider's profile data.
func (a *App) OAuthLogin(ctx context.Context, cred *auth.Credential) (*Result, error) {
	if cred == nil || cred.IDToken == "" {
		return nil, auth.ErrNoIDToken
	}
	release, err := a.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	cctx, cancel := a.call(ctx)
	s, err := a.auth.ExchangeIDToken(cctx, cred.Provider, cred.IDToken)
	cancel()
	if err != nil {
		return nil, err
	}
	return a.finishLogin(ctx, s, &cred.Profile)
}

// finishLogin loads the profile for s, creating it from profile when one is
// given and none exists.
func (a *App) finishLogin(ctx context.Context, s *auth.Session, profile *auth.Profile) (*Result, error) {
	cctx, cancel := a.call(ctx)
	u, err := a.users.GetByAuthID(cctx, s.User.ID)
	cancel()
	if errors.Is(err, entity.ErrNotFound) && profile != nil {
		email := s.User.Email
		if email == "" {
			email = profile.Email
		}
		cctx, cancel = a.call(ctx)
		u, err = a.users.Create(cctx, s.User.ID, email, profile.GivenName, profile.FamilyName)
		cancel()
	}
	if err != nil {
		return nil, err
	}

	a.remember(u)
	if u.OnboardingCompleted {
		a.startPush(u)
	}
	return &Result{Route: routeFor(u), User: u.Clone()}, nil
}

// CompleteOnboarding saves the onboarding answers and marks onboarding done.
func (a *App) CompleteOnboarding(ctx context.Context, p entity.Patch) (*Result, error) {
	release, err := a.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	cur := a.state.User()
	if cur == nil {
		return nil, ErrNoSession
	}
	cctx, cancel := a.call(ctx)
	u, err := a.users.CompleteOnboarding(cctx, cur.ID, p)
	cancel()
	if err != nil {
		return nil, err
	}
	a.remember(u)
	a.startPush(u)
	return &Result{Route: RouteMain, User: u.Clone()}, nil
}

// EnableNotifications registers the device token for the signed-in user and
// reports failures to the caller, unlike the background registration.
func (a *App) EnableNotifications(ctx context.Context) (string, error) {
	cur := a.state.User()
	if cur == nil {
		return "", ErrNoSession
	}
	cctx, cancel := a.call(ctx)
	token, err := a.notif.Register(cctx, cur)
	cancel()
	if err != nil {
		return "", err
	}
	p := entity.Patch{ExpoPushToken: &token, NotificationsEnabled: entity.Bool(true)}
	a.state.UpdateUser(p)
	a.cacheState()
	return token, nil
}

// DisableNotifications clears the device token for the signed-in user.
func (a *App) DisableNotifications(ctx context.Context) error {
	cur := a.state.User()
	if cur == nil {
		return ErrNoSession
	}
	cctx, cancel := a.call(ctx)
	err := a.notif.Unregister(cctx, cur)
	cancel()
	if err != nil {
		return err
	}
	none := ""
	a.state.UpdateUser(entity.Patch{ExpoPushToken: &none, NotificationsEnabled: entity.Bool(false)})
	a.cacheState()
	return nil
}

func (a *App) cacheState() {
	if u := a.state.User(); u != nil && a.creds != nil {
		if err := a.creds.SaveUser(u); err != nil {
			a.logger.Warnw("cache user failed", "user_id", u.ID, "err", err)
		}
	}
}

// Logout signs out remotely when possible and always forgets the local
// session. It never fails.
func (a *App) Logout(ctx context.Context) Result {
	cctx, cancel := a.call(ctx)
	if err := a.auth.Logout(cctx); err != nil {
		a.logger.Warnw("remote logout failed", "err", err)
	}
	cancel()
	if a.creds != nil {
		if err := a.creds.Clear(); err != nil {
			a.logger.Warnw("clear credential store failed", "err", err)
		}
	}
	a.state.Clear()
	return Result{Route: RouteWelcome}
}
