package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"invtrack/cmd/internal/share"
	"invtrack/cmd/security/adminkey"

	"github.com/spf13/cobra"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cli struct {
	configPath string
	cfg        Config
	log        Logger
}

// NewRootCommand builds the invtrack command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "invtrack",
		Short:         "Inventory identity codes, labels and secure share links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (default $"+ConfigEnvKey+")")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.codesCmd(),
		c.shareCmd(),
		c.auditCmd(),
		adminKeyCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := NewLogger(c.cfg.LogLevel, c.cfg.LogFormat)
			a, err := New(cmd.Context(), c.cfg, log)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.DatabaseURL == "" {
				return errors.New("migrate: INVTRACK_DATABASE_URL is not set")
			}
			pool, err := NewDBPool(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := Migrate(cmd.Context(), pool, c.cfg.DBSchema); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema %s applied\n", c.cfg.DBSchema)
			return err
		},
	}
}

// services opens the domain layer for one CLI command.
func (c *cli) services(ctx context.Context) (*Services, error) {
	svc, err := NewServices(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	if !svc.DBEnabled() {
		c.log.Warn("cli.inmemory", "hint", "set INVTRACK_DATABASE_URL to operate on persistent data")
	}
	return svc, nil
}

func (c *cli) codesCmd() *cobra.Command {
	codes := &cobra.Command{
		Use:   "codes",
		Short: "Manage asset identifiers and code images",
	}

	codes.AddCommand(&cobra.Command{
		Use:   "backfill",
		Short: "Assign identifiers to assets that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Assets.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"total": res.Total, "assigned": res.Assigned})
		},
	})

	var all bool
	render := &cobra.Command{
		Use:   "render [IDENTIFIER]",
		Short: "Render labeled QR and barcode images",
		Long: `Render labeled QR and barcode images for one asset, or for every
asset with an identifier.

Examples:
  invtrack codes render IT-HL0042
  invtrack codes render --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("render: pass exactly one of --all or IDENTIFIER")
			}
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if all {
				sum, err := svc.Labels.RenderAll(cmd.Context(), svc.Assets.Store())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), sum)
			}

			a, err := svc.Assets.GetByIdentifier(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			arts, err := svc.Labels.EnsureArtifacts(cmd.Context(), a.Identifier, a.OwnerName)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"identifier":   a.Identifier,
				"qr_path":      arts.QRPath,
				"barcode_path": arts.BarcodePath,
				"degraded":     arts.Degraded,
			})
		},
	}
	render.Flags().BoolVar(&all, "all", false, "Render every asset with an identifier")
	codes.AddCommand(render)

	return codes
}

func (c *cli) shareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Issue, list and revoke share links",
	}

	var (
		scope     string
		targets   []string
		mode      string
		emails    []string
		ttl       time.Duration
		createdBy string
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue share links",
		Long: `Issue share links. Allow-list mode issues one link per email.

Examples:
  invtrack share issue --scope all --ttl 72h
  invtrack share issue --scope single --target "Alice" --mode email_allowlist --email a@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, ok := share.ParseScope(scope)
			if !ok {
				return fmt.Errorf("issue: unknown scope %q", scope)
			}
			am, ok := share.ParseAccessMode(mode)
			if !ok {
				return fmt.Errorf("issue: unknown access mode %q", mode)
			}

			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			links, err := svc.Shares.Issue(cmd.Context(), share.IssueInput{
				Scope:      sc,
				Targets:    targets,
				AccessMode: am,
				Emails:     emails,
				TTL:        ttl,
				CreatedBy:  createdBy,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), links)
		},
	}
	issue.Flags().StringVar(&scope, "scope", "all", "Scope: single, multiple or all")
	issue.Flags().StringSliceVar(&targets, "target", nil, "Owner name (repeatable)")
	issue.Flags().StringVar(&mode, "mode", "anyone", "Access mode: anyone or email_allowlist")
	issue.Flags().StringSliceVar(&emails, "email", nil, "Allowed email (repeatable)")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "Link lifetime, 0 for no expiry")
	issue.Flags().StringVar(&createdBy, "created-by", "cli", "Issuer recorded on the link")

	var byID bool
	revoke := &cobra.Command{
		Use:   "revoke TOKEN|ID",
		Short: "Revoke a share link by token, or by id with --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			var l share.Link
			if byID {
				l, err = svc.Shares.RevokeByID(cmd.Context(), args[0])
			} else {
				l, err = svc.Shares.Revoke(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), l)
		},
	}
	revoke.Flags().BoolVar(&byID, "id", false, "Treat the argument as a link id")

	var listLimit int
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List share links, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			links, err := svc.Shares.List(cmd.Context(), listLimit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), links)
		},
	}
	list.Flags().IntVar(&listLimit, "limit", 50, "Maximum links to list")

	cmd.AddCommand(issue, revoke, list)
	return cmd
}

func (c *cli) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect share access attempts",
	}

	var (
		limit  int
		linkID string
	)
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List recent access attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if linkID != "" {
				rows, err := svc.Audit.ListByLink(cmd.Context(), linkID, limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			rows, err := svc.Audit.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
	recent.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	recent.Flags().StringVar(&linkID, "link", "", "Only attempts against this link id")

	cmd.AddCommand(recent)
	return cmd
}

func adminKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adminkey",
		Short: "Create and hash the operator API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "hash",
		Short: "Hash a key read from stdin for INVTRACK_ADMIN_KEY_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := adminkey.FromEnv()
			if err != nil {
				return err
			}
			hash, err := cfg.Hash(key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a random key and print it with its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := adminkey.Generate()
			if err != nil {
				return err
			}
			cfg, err := adminkey.FromEnv()
			if err != nil {
				return err
			}
			hash, err := cfg.Hash(key)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"key": key, "hash": hash})
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Display version information",
		Aliases: []string{"v"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "invtrack %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
			return err
		},
	}
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no key on stdin")
	}
	key := strings.TrimSpace(sc.Text())
	if key == "" {
		return "", errors.New("empty key")
	}
	return key, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
