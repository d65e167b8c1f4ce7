package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/servicehub/internal/api"
)

// table writes rows with aligned columns under a muted header.
func (a *App) table(header string, rows func(w *tabwriter.Writer)) {
	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, a.Styles.Muted.Render(header))
	rows(w)
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newCategoriesCmd() *cobra.Command {
	categoriesCmd := &cobra.Command{
		Use:   "categories",
		Short: "Browse service categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	categoriesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List service categories",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			// Categories are public; a stored session is sent when present.
			if err := app.Sessions.Initialize(ctx); err != nil {
				app.Logger.WithError(err).Debug("continuing without a stored session")
			}
			categories, err := app.API.Categories.List(ctx)
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			return app.render(categories, func() {
				if len(categories) == 0 {
					fmt.Fprintln(app.Out, "No categories.")
					return
				}
				app.table("ID\tNAME\tDESCRIPTION", func(w *tabwriter.Writer) {
					for _, c := range categories {
						fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Description)
					}
				})
			})
		}),
	})
	return categoriesCmd
}

func newFavoritesCmd() *cobra.Command {
	favoritesCmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage your favorite services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your favorite services",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			favorites, err := app.API.Favorites.List(ctx)
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			return app.render(favorites, func() {
				if len(favorites) == 0 {
					fmt.Fprintln(app.Out, "No favorites yet.")
					return
				}
				app.table("SERVICE\tTITLE\tADDED", func(w *tabwriter.Writer) {
					for _, f := range favorites {
						fmt.Fprintf(w, "%s\t%s\t%s\n", f.ServiceID, f.Title, formatTime(f.CreatedAt))
					}
				})
			})
		}),
	}

	addCmd := &cobra.Command{
		Use:   "add SERVICE_ID",
		Short: "Add a service to your favorites",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			favorite, err := app.API.Favorites.Add(ctx, args[0])
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			return app.render(favorite, func() {
				app.success("Added %s to favorites", args[0])
			})
		}),
	}

	removeCmd := &cobra.Command{
		Use:   "remove SERVICE_ID",
		Short: "Remove a service from your favorites",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			if err := app.API.Favorites.Remove(ctx, args[0]); err != nil {
				return app.checkAuth(ctx, err)
			}
			app.success("Removed %s from favorites", args[0])
			return nil
		}),
	}

	favoritesCmd.AddCommand(listCmd, addCmd, removeCmd)
	return favoritesCmd
}

func newMessagesCmd() *cobra.Command {
	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "Read and send messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	conversationsCmd := &cobra.Command{
		Use:   "conversations",
		Short: "List your conversations",
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			conversations, err := app.API.Messages.Conversations(ctx)
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			return app.render(conversations, func() {
				if len(conversations) == 0 {
					fmt.Fprintln(app.Out, "No conversations.")
					return
				}
				app.table("ID\tWITH\tUNREAD\tUPDATED\tLAST MESSAGE", func(w *tabwriter.Writer) {
					for _, c := range conversations {
						fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.ID, c.Participant, c.Unread, formatTime(c.UpdatedAt), c.LastMessage)
					}
				})
			})
		}),
	}

	listCmd := &cobra.Command{
		Use:   "list CONVERSATION_ID",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			messages, err := app.API.Messages.List(ctx, args[0])
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			self := ""
			if u := app.Sessions.User(); u != nil {
				self = u.ID
			}
			return app.render(messages, func() {
				for _, m := range messages {
					sender := m.SenderID
					if sender == self {
						sender = "you"
					}
					fmt.Fprintf(app.Out, "%s %s: %s\n", app.Styles.Muted.Render(formatTime(m.CreatedAt)), app.Styles.Label.Render(sender), m.Content)
				}
			})
		}),
	}

	sendCmd := &cobra.Command{
		Use:   "send RECIPIENT_ID MESSAGE",
		Short: "Send a message",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			msg, err := app.API.Messages.Send(ctx, api.SendMessageRequest{RecipientID: args[0], Content: args[1]})
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			return app.render(msg, func() {
				app.success("Message sent")
			})
		}),
	}

	messagesCmd.AddCommand(conversationsCmd, listCmd, sendCmd)
	return messagesCmd
}

func newRatingsCmd() *cobra.Command {
	ratingsCmd := &cobra.Command{
		Use:   "ratings",
		Short: "Read and leave service ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list SERVICE_ID",
		Short: "List the ratings of a service",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			if err := app.Sessions.Initialize(ctx); err != nil {
				app.Logger.WithError(err).Debug("continuing without a stored session")
			}
			ratings, err := app.API.Ratings.List(ctx, args[0])
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			return app.render(ratings, func() {
				if len(ratings) == 0 {
					fmt.Fprintln(app.Out, "No ratings yet.")
					return
				}
				app.table("SCORE\tDATE\tCOMMENT", func(w *tabwriter.Writer) {
					for _, r := range ratings {
						fmt.Fprintf(w, "%d/5\t%s\t%s\n", r.Score, formatTime(r.CreatedAt), r.Comment)
					}
				})
			})
		}),
	}

	createCmd := &cobra.Command{
		Use:   "create SERVICE_ID",
		Short: "Rate a service",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			ctx := cmd.Context()
			score, _ := cmd.Flags().GetInt("score")
			comment, _ := cmd.Flags().GetString("comment")
			if err := app.requireSession(ctx); err != nil {
				return err
			}
			rating, err := app.API.Ratings.Create(ctx, api.NewRating{ServiceID: args[0], Score: score, Comment: comment})
			if err != nil {
				return app.checkAuth(ctx, err)
			}
			return app.render(rating, func() {
				app.success("Rated %s %d/5", args[0], rating.Score)
			})
		}),
	}
	createCmd.Flags().Int("score", 0, "score from 1 to 5")
	createCmd.Flags().String("comment", "", "optional comment")
	_ = createCmd.MarkFlagRequired("score")

	ratingsCmd.AddCommand(listCmd, createCmd)
	return ratingsCmd
}
