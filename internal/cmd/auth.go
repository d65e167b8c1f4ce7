package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/servicehub/internal/auth"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/identity/oidcflow"
	"github.com/felixgeelhaar/servicehub/internal/session"
	"github.com/felixgeelhaar/servicehub/internal/tui"
)

func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign out and inspect the session",
		Long: `Manage the servicehub session.

The session token is stored in ~/.servicehub/auth.json (or the configured
storage backend) and reused by every other command until you sign out.

Subcommands:
  login            Sign in with email, Google, Apple or phone
  register         Create an account with email and password
  logout           Sign out and remove the stored session
  status           Show the current session
  verify-otp       Confirm a code sent by the servicehub backend
  change-password  Set a new password with a reset token

Examples:
  servicehub auth login --email ada@example.com
  servicehub auth login --provider google
  servicehub auth status
  servicehub auth logout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	authCmd.AddCommand(
		newAuthLoginCmd(),
		newAuthRegisterCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthVerifyOTPCmd(),
		newAuthChangePasswordCmd(),
	)
	return authCmd
}

func newAuthLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Long: `Sign in to servicehub.

Email sign-in asks for the password when --password is not given. Google and
Apple sign-in open your browser and wait for you to finish there. Phone
sign-in texts you a six-digit code.

Examples:
  servicehub auth login --email ada@example.com
  servicehub auth login --provider apple
  servicehub auth login --provider phone --phone +15555550100`,
		RunE: withApp(runAuthLogin),
	}
	cmd.Flags().String("provider", auth.ProviderEmail, "sign-in provider: email, google, apple or phone")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	cmd.Flags().String("phone", "", "phone number in international format")
	return cmd
}

func newAuthRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with email and password",
		Long: `Create a servicehub account. You are signed in afterwards.

Examples:
  servicehub auth register --email ada@example.com`,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			strategy, err := app.emailStrategy(cmd.Context(), email, password, true)
			if auth.IsCanceled(err) {
				app.notice("Sign-up canceled.")
				return nil
			}
			if err != nil {
				return err
			}
			return app.login(cmd.Context(), strategy)
		}),
	}
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	return cmd
}

func runAuthLogin(cmd *cobra.Command, args []string, app *App) error {
	ctx := cmd.Context()
	provider, _ := cmd.Flags().GetString("provider")

	var (
		strategy auth.Strategy
		err      error
	)
	switch strings.ToLower(provider) {
	case auth.ProviderEmail:
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		strategy, err = app.emailStrategy(ctx, email, password, false)
	case auth.ProviderGoogle:
		strategy, err = app.googleStrategy()
	case auth.ProviderApple:
		strategy, err = app.appleStrategy()
	case auth.ProviderPhone:
		phone, _ := cmd.Flags().GetString("phone")
		strategy, err = app.phoneStrategy(phone)
	default:
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown provider %q (want email, google, apple or phone)", provider))
	}
	if auth.IsCanceled(err) {
		app.notice("Sign-in canceled.")
		return nil
	}
	if err != nil {
		return err
	}
	return app.login(ctx, strategy)
}

// login runs the sign-in and prints the outcome. Browser sign-ins show a
// spinner while waiting.
func (a *App) login(ctx context.Context, strategy auth.Strategy) error {
	run := func(ctx context.Context) error {
		return a.Account.Login(ctx, strategy)
	}

	var err error
	switch strategy.Name() {
	case auth.ProviderGoogle, auth.ProviderApple:
		a.notice("Opening your browser to sign in with %s...", strategy.Name())
		err = tui.RunWithSpinner(ctx, a.Err, a.Interactive, "Waiting for you to finish in the browser", run)
	default:
		err = run(ctx)
	}
	if err != nil && !auth.IsCanceled(err) {
		return err
	}

	state := a.Account.State()
	if state.Canceled || state.User == nil {
		a.notice("Sign-in canceled.")
		return nil
	}
	return a.render(state.User, func() {
		a.success("Signed in")
		fmt.Fprintln(a.Out, a.Styles.Card("Account",
			tui.Field{Label: "Name", Value: state.User.DisplayName},
			tui.Field{Label: "Email", Value: state.User.Email},
			tui.Field{Label: "Phone", Value: state.User.PhoneNumber},
			tui.Field{Label: "User ID", Value: state.User.ID},
		))
	})
}

func (a *App) emailStrategy(ctx context.Context, email, password string, create bool) (*auth.EmailStrategy, error) {
	provider, err := a.IdentityProvider()
	if err != nil {
		return nil, err
	}
	if email == "" {
		if !a.Interactive {
			return nil, errors.New(errors.ErrCodeMissingField, "--email is required")
		}
		if email, err = tui.PromptForString(ctx, tui.Prompt{Message: "Email", Placeholder: "you@example.com", Validate: auth.ValidateEmail}); err != nil {
			return nil, err
		}
	}
	if password == "" {
		if !a.Interactive {
			return nil, errors.New(errors.ErrCodeMissingField, "--password is required")
		}
		if password, err = tui.PromptForString(ctx, tui.Prompt{Message: "Password", Secret: true, Validate: auth.ValidatePassword}); err != nil {
			return nil, err
		}
	}
	return auth.NewEmailStrategy(provider, email, password, create), nil
}

func (a *App) flowFactory() auth.FlowFactory {
	return auth.DefaultFlowFactory(
		oidcflow.WithLogger(a.Logger),
		oidcflow.WithBrowser(func(ctx context.Context, url string) error {
			if err := oidcflow.OpenBrowser(ctx, url); err != nil {
				fmt.Fprintf(a.Err, "Open this URL to continue:\n\n  %s\n\n", url)
			}
			return nil
		}),
	)
}

func (a *App) googleStrategy() (*auth.GoogleStrategy, error) {
	provider, err := a.IdentityProvider()
	if err != nil {
		return nil, err
	}
	s := auth.NewGoogleStrategy(provider, auth.WithOAuthLogger(a.Logger), auth.WithFlowFactory(a.flowFactory()))
	if a.Config.Google.ClientID != "" {
		if err := s.Configure(a.Config.Google); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *App) appleStrategy() (*auth.AppleStrategy, error) {
	provider, err := a.IdentityProvider()
	if err != nil {
		return nil, err
	}
	s := auth.NewAppleStrategy(provider, auth.WithOAuthLogger(a.Logger), auth.WithFlowFactory(a.flowFactory()))
	if a.Config.Apple.ClientID != "" {
		if err := s.Configure(a.Config.Apple); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *App) phoneStrategy(phone string) (*auth.PhoneStrategy, error) {
	provider, err := a.IdentityProvider()
	if err != nil {
		return nil, err
	}
	if !a.Interactive {
		return nil, errors.New(errors.ErrCodeMissingField, "phone sign-in needs an interactive terminal to enter the code").
			WithSuggestion("Use 'servicehub auth verify-otp' for codes sent by the servicehub backend")
	}

	askPhone := func(ctx context.Context) (string, error) {
		if phone != "" {
			return phone, nil
		}
		return tui.PromptForString(ctx, tui.Prompt{
			Message:     "Phone number",
			Placeholder: "+15555550100",
			Validate: func(s string) error {
				return auth.ValidatePhone(auth.NormalizePhone(s))
			},
		})
	}
	askCode := func(ctx context.Context) (string, error) {
		return tui.PromptForString(ctx, tui.Prompt{Message: "Verification code", Placeholder: "123456", Validate: auth.ValidateOTP})
	}
	return auth.NewPhoneStrategy(provider, auth.WithPhonePrompts(askPhone, askCode), auth.WithPhoneLogger(a.Logger)), nil
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			// An unreadable store is cleared too.
			initErr := app.Sessions.Initialize(ctx)
			if initErr != nil {
				app.Logger.WithError(initErr).Warn("could not read the stored session")
			}
			if initErr == nil && !app.Sessions.IsAuthenticated() {
				app.notice("Not signed in.")
				return nil
			}
			if err := app.Account.Logout(ctx); err != nil {
				return err
			}
			if initErr != nil {
				app.success("Stored credentials reset")
				return nil
			}
			app.success("Signed out")
			return nil
		}),
	}
}

// statusView is the machine-readable form of auth status.
type statusView struct {
	Authenticated bool       `json:"authenticated" yaml:"authenticated"`
	User          any        `json:"user,omitempty" yaml:"user,omitempty"`
	Issuer        string     `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			err := app.Account.Bootstrap(cmd.Context())
			state := app.Account.State()

			if !state.Authenticated() {
				return app.render(statusView{}, func() {
					if state.ErrorMessage != "" {
						fmt.Fprintln(app.Out, app.Styles.Warning.Render(state.ErrorMessage))
					}
					fmt.Fprintln(app.Out, "Not signed in.")
					fmt.Fprintln(app.Out, "Use 'servicehub auth login' to authenticate.")
				})
			}
			if err != nil {
				app.Logger.WithError(err).Debug("could not refresh the user")
			}

			view := statusView{Authenticated: true}
			if state.User != nil {
				view.User = state.User
			}
			if claims, cerr := session.ClaimsFromToken(state.Token); cerr == nil {
				if exp := claims.Expiry(); !exp.IsZero() {
					view.ExpiresAt = &exp
				}
				view.Issuer = claims.Issuer
			}

			return app.render(view, func() {
				fields := []tui.Field{}
				if state.User != nil {
					fields = append(fields,
						tui.Field{Label: "Name", Value: state.User.DisplayName},
						tui.Field{Label: "Email", Value: state.User.Email},
						tui.Field{Label: "Phone", Value: state.User.PhoneNumber},
						tui.Field{Label: "User ID", Value: state.User.ID},
					)
				} else if state.ErrorMessage != "" {
					fields = append(fields, tui.Field{Label: "Warning", Value: state.ErrorMessage})
				}
				if view.ExpiresAt != nil {
					fields = append(fields, tui.Field{Label: "Expires", Value: view.ExpiresAt.Local().Format(time.RFC1123)})
				}
				fmt.Fprintln(app.Out, app.Styles.Card("Signed in", fields...))
			})
		}),
	}
}

func newAuthVerifyOTPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-otp",
		Short: "Confirm a code sent by the servicehub backend",
		Long: `Sign in with a one-time code that the servicehub backend sent by SMS.

Examples:
  servicehub auth verify-otp --phone +15555550100 --code 123456`,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			phone, _ := cmd.Flags().GetString("phone")
			code, _ := cmd.Flags().GetString("code")

			if code == "" {
				if !app.Interactive {
					return errors.New(errors.ErrCodeMissingField, "--code is required")
				}
				var err error
				if code, err = tui.PromptForString(ctx, tui.Prompt{Message: "Verification code", Validate: auth.ValidateOTP}); err != nil {
					return err
				}
			}
			if err := app.Account.VerifyOTP(ctx, phone, code); err != nil {
				return err
			}
			app.success("Phone number verified, you are signed in")
			return nil
		}),
	}
	cmd.Flags().String("phone", "", "phone number in international format")
	cmd.Flags().String("code", "", "six-digit verification code")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newAuthChangePasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Set a new password with a reset token",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			token, _ := cmd.Flags().GetString("token")
			password, _ := cmd.Flags().GetString("password")

			if password == "" {
				if !app.Interactive {
					return errors.New(errors.ErrCodeMissingField, "--password is required")
				}
				var err error
				if password, err = tui.PromptForString(ctx, tui.Prompt{Message: "New password", Secret: true, Validate: auth.ValidatePassword}); err != nil {
					return err
				}
			}
			if err := app.Account.ChangePassword(ctx, token, password); err != nil {
				return err
			}
			app.success("Password changed")
			return nil
		}),
	}
	cmd.Flags().String("token", "", "password reset token")
	cmd.Flags().String("password", "", "new password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
