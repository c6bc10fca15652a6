// Package app wires the auth client, the user record client, the credential
// cache and the application state into the flows a UI shell drives:
// bootstrap, register, login, OAuth login, onboarding, notifications and logout.
package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/credstore"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/state"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
)

// Route is the screen a flow lands on.
type Route string

const (
	RouteWelcome    Route = "/(auth)/welcome"
	RouteOnboarding Route = "/(onboarding)/step1"
	RouteMain       Route = "/(tabs)"
)

// Outcome is the result of the cold-start bootstrap.
type Outcome int

const (
	OutcomeUnauthenticated Outcome = iota
	OutcomeOnboarding
	OutcomeReady
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOnboarding:
		return "onboarding"
	case OutcomeReady:
		return "ready"
	default:
		return "unauthenticated"
	}
}

// Route returns the screen for the outcome.
func (o Outcome) Route() Route {
	switch o {
	case OutcomeOnboarding:
		return RouteOnboarding
	case OutcomeReady:
		return RouteMain
	default:
		return RouteWelcome
	}
}

var (
	// ErrBusy is returned when a flow is started while another is running.
	ErrBusy = errors.New("another request is in progress")
	// ErrNoSession is returned by flows that need a signed-in user.
	ErrNoSession = errors.New("not signed in")
)

type AuthClient interface {
	Register(ctx context.Context, email, password string) (*auth.Registration, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	ExchangeIDToken(ctx context.Context, provider auth.Provider, idToken string) (*auth.Session, error)
	Logout(ctx context.Context) error
	CurrentSession(ctx context.Context) (*auth.Session, error)
}

type Users interface {
	Create(ctx context.Context, authID, email, name, lastName string) (*entity.User, error)
	GetByAuthID(ctx context.Context, authID string) (*entity.User, error)
	CompleteOnboarding(ctx context.Context, id string, p entity.Patch) (*entity.User, error)
}

// PushLauncher starts a background push registration.
type PushLauncher interface {
	Go(u *entity.User)
}

// Notifications registers or removes the device push token synchronously.
type Notifications interface {
	Register(ctx context.Context, u *entity.User) (string, error)
	Unregister(ctx context.Context, u *entity.User) error
}

// Result is what a flow hands back to the shell.
type Result struct {
	Route               Route
	User                *entity.User
	ConfirmationPending bool
}

type Deps struct {
	Auth          AuthClient
	Users         Users
	Credentials   *credstore.Store
	State         *state.State
	Push          PushLauncher
	Notifications Notifications
	// Timeout bounds each remote call; zero means no limit beyond the caller's ctx.
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

type App struct {
	auth    AuthClient
	users   Users
	creds   *credstore.Store
	state   *state.State
	push    PushLauncher
	notif   Notifications
	timeout time.Duration
	logger  *zap.SugaredLogger
	busy    atomic.Bool
}

func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.State == nil {
		d.State = state.New(nil)
	}
	return &App{
		auth:    d.Auth,
		users:   d.Users,
		creds:   d.Credentials,
		state:   d.State,
		push:    d.Push,
		notif:   d.Notifications,
		timeout: d.Timeout,
		logger:  d.Logger,
	}
}

// State returns the application state the flows update.
func (a *App) State() *state.State { return a.state }

// acquire marks a flow as running; the returned func releases it.
func (a *App) acquire() (func(), error) {
	if !a.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { a.busy.Store(false) }, nil
}

// call bounds a single remote call by the configured timeout.
func (a *App) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// remember writes the profile through to the cache and the state.
func (a *App) remember(u *entity.User) {
	if a.creds != nil {
		if err := a.creds.SaveUser(u); err != nil {
			a.logger.Warnw("cache user failed", "user_id", u.ID, "err", err)
		}
		if err := a.creds.SaveSession(true); err != nil {
			a.logger.Warnw("cache session flag failed", "err", err)
		}
	}
	a.state.SetUser(u)
}

func (a *App) startPush(u *entity.User) {
	if a.push != nil {
		a.push.Go(u)
	}
}

func routeFor(u *entity.User) Route {
	if u.OnboardingCompleted {
		return RouteMain
	}
	return RouteOnboarding
}
