package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/servicehub/internal/api"
	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/tui"
)

func newAccountCmd() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "View and update your account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	accountCmd.AddCommand(newAccountShowCmd(), newAccountUpdateCmd(), newAccountProfileCmd())
	return accountCmd
}

type accountView struct {
	User    *api.User    `json:"user" yaml:"user"`
	Profile *api.Profile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

func newAccountShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the signed-in user",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			if err := app.Account.Refresh(ctx); err != nil {
				return err
			}
			state := app.Account.State()
			return app.render(accountView{User: state.User, Profile: state.Profile}, func() {
				app.printUser(state.User)
				if state.Profile != nil {
					app.printProfile(state.Profile)
				}
			})
		}),
	}
}

func newAccountUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your name, phone number or photo",
		Long: `Change account fields. Only the flags you pass are sent.

Examples:
  servicehub account update --name "Ada Lovelace"
  servicehub account update --phone +15555550100`,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			var update api.UserUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				v, _ := flags.GetString("name")
				update.DisplayName = &v
			}
			if flags.Changed("phone") {
				v, _ := flags.GetString("phone")
				update.PhoneNumber = &v
			}
			if flags.Changed("photo-url") {
				v, _ := flags.GetString("photo-url")
				update.PhotoURL = &v
			}
			if update == (api.UserUpdate{}) {
				return errors.New(errors.ErrCodeMissingField, "nothing to update: pass --name, --phone or --photo-url")
			}

			if err := app.requireSession(ctx); err != nil {
				return err
			}
			if err := app.Account.UserUpdate(ctx, update); err != nil {
				return err
			}
			user := app.Account.State().User
			return app.render(user, func() {
				app.success("Account updated")
				app.printUser(user)
			})
		}),
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().String("photo-url", "", "profile photo URL")
	return cmd
}

func newAccountProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update your service-provider profile",
		Long: `Replace your service-provider profile. Fields you do not pass keep
their current values.

Examples:
  servicehub account profile --bio "Plumber in Lisbon" --rate 35
  servicehub account profile --services plumbing,heating`,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			current, err := app.API.MyProfile(ctx)
			if err != nil {
				return app.checkAuth(ctx, err)
			}

			profile := *current
			flags := cmd.Flags()
			if flags.Changed("bio") {
				profile.Bio, _ = flags.GetString("bio")
			}
			if flags.Changed("location") {
				profile.Location, _ = flags.GetString("location")
			}
			if flags.Changed("services") {
				profile.Services, _ = flags.GetStringSlice("services")
			}
			if flags.Changed("rate") {
				profile.HourlyRate, _ = flags.GetFloat64("rate")
			}

			if err := app.Account.ProfileUpdate(ctx, profile); err != nil {
				return err
			}
			updated := app.Account.State().Profile
			return app.render(updated, func() {
				app.success("Profile updated")
				app.printProfile(updated)
			})
		}),
	}
	cmd.Flags().String("bio", "", "short description of your services")
	cmd.Flags().String("location", "", "where you work")
	cmd.Flags().StringSlice("services", nil, "comma-separated list of services you offer")
	cmd.Flags().Float64("rate", 0, "hourly rate")
	return cmd
}

func (a *App) printUser(u *api.User) {
	if u == nil {
		return
	}
	role := u.Role
	if u.IsProvider {
		role = strings.TrimSpace(role + " (provider)")
	}
	fmt.Fprintln(a.Out, a.Styles.Card("Account",
		tui.Field{Label: "Name", Value: u.DisplayName},
		tui.Field{Label: "Email", Value: u.Email},
		tui.Field{Label: "Phone", Value: u.PhoneNumber},
		tui.Field{Label: "Role", Value: role},
		tui.Field{Label: "User ID", Value: u.ID},
	))
}

func (a *App) printProfile(p *api.Profile) {
	if p == nil {
		return
	}
	rating := ""
	if p.Reviews > 0 {
		rating = fmt.Sprintf("%.1f (%d reviews)", p.Rating, p.Reviews)
	}
	rate := ""
	if p.HourlyRate > 0 {
		rate = strconv.FormatFloat(p.HourlyRate, 'f', 2, 64) + " / hour"
	}
	fmt.Fprintln(a.Out, a.Styles.Card("Provider profile",
		tui.Field{Label: "Bio", Value: p.Bio},
		tui.Field{Label: "Location", Value: p.Location},
		tui.Field{Label: "Services", Value: strings.Join(p.Services, ", ")},
		tui.Field{Label: "Rate", Value: rate},
		tui.Field{Label: "Rating", Value: rating},
	))
}
