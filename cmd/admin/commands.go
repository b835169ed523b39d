package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/auth"
	"github.com/tendant/heritage-site/pkg/pastevent/client"
	"github.com/tendant/heritage-site/pkg/pastevent/docfile"
)

type globalOptions struct {
	server    string
	tokenFile string
	asJSON    bool
}

// NewRootCommand builds the admin CLI
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Heritage site admin CLI",
		Long: `Command line client for the heritage site past event API.

Public reads (get, list, years) need no credential. Authoring commands
send the token stored by "admin token issue".`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("HERITAGE_SERVER", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", envOr("HERITAGE_TOKEN_FILE", client.DefaultFileStorePath()), "where the bearer token is stored")
	rootCmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	rootCmd.AddCommand(
		newTokenCommand(opts),
		newWhoamiCommand(opts),
		newGetCommand(opts),
		newListCommand(opts),
		newYearsCommand(opts),
		newCreateCommand(opts),
		newUpdateCommand(opts),
		newCheckSlugCommand(opts),
		newUploadCommand(opts),
		newDeleteImageCommand(opts),
	)

	return rootCmd
}

func (o *globalOptions) store() *client.FileStore {
	return client.NewFileStore(o.tokenFile)
}

func (o *globalOptions) client() (*client.Client, error) {
	return client.New(o.server, client.WithCredentialStore(o.store()))
}

func (o *globalOptions) print(w io.Writer, v any, human func(io.Writer)) error {
	if o.asJSON || human == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}

func newTokenCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored credential",
	}

	var userID, email, name, role string
	var printOnly bool
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint a token with JWT_SECRET and store it",
		Long: `Mint a signed token for an existing user with the server's JWT_SECRET.
The user must exist in the server's user directory or the token is rejected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user-id must be a UUID: %w", err)
			}

			token, err := auth.NewIssuer(auth.NewJWTAuth(secret), 0).Issue(pastevent.Identity{
				UserID: id, Email: email, Name: name, Role: role,
			})
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			if printOnly {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			if err := opts.store().Save(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored in %s\n", opts.tokenFile)
			return nil
		},
	}
	issue.Flags().StringVar(&userID, "user-id", os.Getenv("ADMIN_USER_ID"), "user id (token subject)")
	issue.Flags().StringVar(&email, "email", os.Getenv("ADMIN_EMAIL"), "user email")
	issue.Flags().StringVar(&name, "name", os.Getenv("ADMIN_NAME"), "display name")
	issue.Flags().StringVar(&role, "role", "admin", "role claim")
	issue.Flags().BoolVar(&printOnly, "print", false, "print the token instead of storing it")

	save := &cobra.Command{
		Use:   "save <token>",
		Short: "Store an existing token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.store().Save(args[0])
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.store().Clear()
		},
	}

	cmd.AddCommand(issue, save, clearCmd)
	return cmd
}

func newWhoamiCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			identity, err := c.Me(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return opts.print(cmd.OutOrStdout(), identity, func(w io.Writer) {
				fmt.Fprintf(w, "%s <%s> role=%s\n", identity.UserID, identity.Email, identity.Role)
			})
		},
	}
}

func newGetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <slug>",
		Short: "Show a past event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			event, err := c.GetPastEvent(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			return opts.print(cmd.OutOrStdout(), event, nil)
		},
	}
}

func newListCommand(opts *globalOptions) *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past events, most recent year first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var filter *int
			if cmd.Flags().Changed("year") {
				filter = &year
			}
			summaries, err := c.ListPastEvents(cmd.Context(), filter)
			if err != nil {
				return explain(err)
			}
			return opts.print(cmd.OutOrStdout(), summaries, func(w io.Writer) {
				printSummaries(w, summaries)
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "only list events of this year")

	return cmd
}

func printSummaries(w io.Writer, summaries []pastevent.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tSLUG\tTITLE\tID")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Year, s.Slug, s.Title, s.ID)
	}
	tw.Flush()
}

func newYearsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "years",
		Short: "Show the number of past events per year",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			years, err := c.ListYears(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return opts.print(cmd.OutOrStdout(), years, func(w io.Writer) {
				for _, y := range years {
					fmt.Fprintf(w, "%d\t%d\n", y.Year, y.Count)
				}
			})
		},
	}
}

func newCreateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <document.yaml|document.json>",
		Short: "Create a past event from a document file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := docfile.Read(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			id, err := c.CreatePastEvent(cmd.Context(), json.RawMessage(doc))
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", id)
			return nil
		},
	}
}

func newUpdateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <patch.yaml|patch.json>",
		Short: "Apply a partial update to a past event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("id must be a UUID: %w", err)
			}
			patch, err := docfile.Read(args[1])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.UpdatePastEvent(cmd.Context(), id, json.RawMessage(patch)); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", id)
			return nil
		},
	}
}

func newCheckSlugCommand(opts *globalOptions) *cobra.Command {
	var excludeID string

	cmd := &cobra.Command{
		Use:   "check-slug <slug>",
		Short: "Report whether a slug is already taken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var exclude *uuid.UUID
			if excludeID != "" {
				id, err := uuid.Parse(excludeID)
				if err != nil {
					return fmt.Errorf("--exclude-id must be a UUID: %w", err)
				}
				exclude = &id
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			exists, err := c.CheckSlug(cmd.Context(), args[0], exclude)
			if err != nil {
				return explain(err)
			}
			return opts.print(cmd.OutOrStdout(), map[string]bool{"exists": exists}, func(w io.Writer) {
				if exists {
					fmt.Fprintf(w, "%s is taken\n", args[0])
				} else {
					fmt.Fprintf(w, "%s is available\n", args[0])
				}
			})
		},
	}
	cmd.Flags().StringVar(&excludeID, "exclude-id", "", "ignore the record with this id")

	return cmd
}

func newUploadCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload an image and print its /uploads URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			contentType := mime.TypeByExtension(filepath.Ext(args[0]))
			c, err := opts.client()
			if err != nil {
				return err
			}
			uploaded, err := c.UploadImage(cmd.Context(), filepath.Base(args[0]), contentType, f)
			if err != nil {
				return explain(err)
			}
			return opts.print(cmd.OutOrStdout(), uploaded, func(w io.Writer) {
				fmt.Fprintln(w, uploaded.URL)
			})
		},
	}
}

func newDeleteImageCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-image <filename>",
		Short: "Delete an uploaded image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.DeleteImage(cmd.Context(), args[0]); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
