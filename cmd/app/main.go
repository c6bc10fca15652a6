// Command app drives the application core from a terminal the way the
// mobile screens do: bootstrap, sign-up, sign-in, onboarding, notifications
// and sign-out. Credentials persist between runs in CREDENTIAL_STORE_PATH.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/app"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/config"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/credstore"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/push"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/relay"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/state"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/updates"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/rest"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/utilities"
)

const usage = `usage: app <command> [flags]

commands:
  bootstrap                      decide the start screen from the stored session
  register -email -password      create an account
  login -email -password         sign in with email and password
  oauth-google -code             sign in with a Google authorization code (no code prints the consent URL)
  oauth-apple -token [-given -family -email]
                                 sign in with an Apple identity token
  onboard -name -last -birth     finish onboarding
  notifications on|off           register or remove the device push token
  notify -title -body [-user|-token] [-route]
                                 send a push through the relay
  language en|es                 set the UI language
  theme light|dark|system        set the UI theme
  logout                         sign out
  updates check|sync|apply|current
                                 over-the-air bundle updates
`

type core struct {
	app      *app.App
	relay    *relay.Client
	push     *push.Detached
	oauth    *auth.GoogleCodeExchanger
	updates  *updates.Client
	timeout  time.Duration
	language func(state.Language) error
	theme    func(state.Theme) error
}

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	c, err := build(config.Load(), lg.Sugar())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	err = c.run(ctx, os.Args[1], os.Args[2:])
	// background push registrations finish before the process exits
	c.push.Wait()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if r := auth.Classify(err); r != auth.ReasonUnknown {
			fmt.Fprintf(os.Stderr, "reason: %s\n", r)
		}
		os.Exit(1)
	}
}

func build(cfg config.Config, logger *zap.SugaredLogger) (*core, error) {
	kv, err := credstore.NewFileKV(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: cfg.RequestTimeout}

	ac := auth.NewClient(cfg.PlatformURL, cfg.AnonKey, auth.NewKVSessionStore(kv), hc, logger)
	users := user.NewService(rest.New(cfg.PlatformURL, cfg.AnonKey, ac.AccessToken, hc), logger)

	perm := push.StaticPermission(cfg.PushPermission)
	reg := push.NewRegistrar(perm, push.StaticToken(cfg.PushToken), users, logger)
	det := push.NewDetached(reg, cfg.RequestTimeout, logger)

	st := state.New(kv)
	a := app.New(app.Deps{
		Auth:          ac,
		Users:         users,
		Credentials:   credstore.New(kv, logger),
		State:         st,
		Push:          det,
		Notifications: reg,
		Timeout:       cfg.RequestTimeout,
		Logger:        logger,
	})

	upd := updates.New(updates.Config{
		URL:            cfg.UpdatesURL,
		RuntimeVersion: cfg.UpdatesRuntimeVersion,
		Platform:       cfg.UpdatesPlatform,
		Channel:        cfg.UpdatesChannel,
		Dir:            cfg.UpdatesDir,
	}, kv, hc, logger)

	c := &core{
		app:      a,
		relay:    relay.NewClient(cfg.RelayURL, cfg.AnonKey, ac.AccessToken, hc),
		push:     det,
		updates:  upd,
		timeout:  cfg.RequestTimeout,
		language: st.SetLanguage,
		theme:    st.SetTheme,
	}
	if cfg.GoogleClientID != "" {
		c.oauth = auth.NewGoogleCodeExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}
	return c, nil
}

func (c *core) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	code := fs.String("code", "", "Google authorization code")
	token := fs.String("token", "", "identity token or push token")
	given := fs.String("given", "", "given name")
	family := fs.String("family", "", "family name")
	name := fs.String("name", "", "first name")
	last := fs.String("last", "", "last name")
	birth := fs.String("birth", "", "birth date, YYYY-MM-DD")
	title := fs.String("title", "", "notification title")
	body := fs.String("body", "", "notification body")
	userID := fs.String("user", "", "recipient user id")
	route := fs.String("route", "", "route opened by the notification")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "bootstrap":
		outcome, u := c.app.Bootstrap(ctx)
		return show(map[string]any{"outcome": outcome.String(), "route": outcome.Route(), "user": u})
	case "register":
		res, err := c.app.Register(ctx, *email, *password)
		if err != nil {
			return err
		}
		if res.ConfirmationPending {
			fmt.Println("Check your inbox to confirm your email address, then log in.")
		}
		return show(res)
	case "login":
		res, err := c.app.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		return show(res)
	case "oauth-google":
		if c.oauth == nil {
			return fmt.Errorf("GOOGLE_CLIENT_ID is not set")
		}
		if *code == "" {
			fmt.Println(c.oauth.AuthURL(utilities.NewKSUID()))
			return nil
		}
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		cred, err := c.oauth.Exchange(cctx, *code)
		cancel()
		if err != nil {
			return err
		}
		res, err := c.app.OAuthLogin(ctx, cred)
		if err != nil {
			return err
		}
		return show(res)
	case "oauth-apple":
		res, err := c.app.OAuthLogin(ctx, auth.AppleCredential(*token, *given, *family, *email))
		if err != nil {
			return err
		}
		return show(res)
	case "onboard":
		p := entity.Patch{Name: entity.String(*name), LastName: entity.String(*last)}
		if *birth != "" {
			d, err := time.Parse("2006-01-02", *birth)
			if err != nil {
				return fmt.Errorf("invalid birth date: %w", err)
			}
			p.BirthDate = entity.String(d.UTC().Format("2006-01-02T15:04:05.000Z"))
		}
		if outcome, _ := c.app.Bootstrap(ctx); outcome == app.OutcomeUnauthenticated {
			return app.ErrNoSession
		}
		res, err := c.app.CompleteOnboarding(ctx, p)
		if err != nil {
			return err
		}
		return show(res)
	case "notifications":
		if c.app.State().User() == nil {
			c.app.Bootstrap(ctx)
		}
		switch fs.Arg(0) {
		case "on":
			tok, err := c.app.EnableNotifications(ctx)
			if err != nil {
				return err
			}
			return show(map[string]string{"expo_push_token": tok})
		case "off":
			return c.app.DisableNotifications(ctx)
		default:
			return fmt.Errorf("notifications: want on or off")
		}
	case "notify":
		var res relay.Response
		if *userID != "" {
			res = c.relay.SendToUser(ctx, *userID, *title, *body, *route, nil)
		} else {
			res = c.relay.SendToToken(ctx, *token, *title, *body, *route, nil)
		}
		if !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		return show(res.Result)
	case "language":
		return c.language(state.Language(fs.Arg(0)))
	case "theme":
		return c.theme(state.Theme(fs.Arg(0)))
	case "logout":
		return show(c.app.Logout(ctx))
	case "updates":
		return c.runUpdates(ctx, fs.Arg(0))
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *core) runUpdates(ctx context.Context, sub string) error {
	switch sub {
	case "check":
		info, err := c.updates.Check(ctx)
		if err != nil {
			return err
		}
		return show(info)
	case "sync":
		reload, err := c.updates.Sync(ctx)
		if err != nil {
			return err
		}
		return show(map[string]bool{"success": true, "needsReload": reload})
	case "apply":
		applied, err := c.updates.Apply()
		if err != nil {
			return err
		}
		return show(map[string]any{"applied": applied, "current": c.updates.Current()})
	case "current", "":
		return show(c.updates.Current())
	default:
		return fmt.Errorf("updates: want check, sync, apply or current")
	}
}

func show(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
