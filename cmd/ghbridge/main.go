package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opengovern/ghbridge"
	ghlog "github.com/opengovern/ghbridge/internal/log"
)

var version = "dev"

type options struct {
	baseURL        string
	logLevel       string
	logFormat      string
	appID          string
	privateKeyPath string
	installationID int64
	maxRetries     int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	logCfg := ghlog.FromEnv()
	opts := &options{logLevel: logCfg.Level, logFormat: string(logCfg.Format)}

	root := &cobra.Command{
		Use:           "ghbridge",
		Short:         "Rate-limit aware GitHub REST client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", ghbridge.DefaultBaseURL, "GitHub API root")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", opts.logFormat, "log format (text, json)")
	flags.StringVar(&opts.appID, "app-id", "", "authenticate as this GitHub App")
	flags.StringVar(&opts.privateKeyPath, "private-key", "", "GitHub App private key (PEM or PKCS#12)")
	flags.Int64Var(&opts.installationID, "installation-id", 0, "act as this App installation")
	flags.IntVar(&opts.maxRetries, "max-limit-retries", 0, "give up after this many rate limit waits (0 = never)")

	root.AddCommand(
		newRateLimitCmd(opts),
		newListCmd(opts),
		newWhoamiCmd(opts),
	)
	return root
}

// bridge builds a GitHubBridge from flags and environment. GITHUB_TOKEN is
// used unless App flags are given.
func (o *options) bridge(stderr io.Writer) (*ghbridge.GitHubBridge, error) {
	logger := ghlog.New(&ghlog.Config{Level: o.logLevel, Format: ghlog.Format(o.logFormat), Output: stderr})
	cfg := &ghbridge.BridgeConfig{
		BaseURL:         o.baseURL,
		UserAgent:       "ghbridge/" + version,
		Logger:          logger,
		MaxLimitRetries: o.maxRetries,
		RateLimitChecker: ghbridge.NewRateLimitChecker().
			WithPolicy(ghbridge.CategoryCore, ghbridge.LiteralValuePolicy{SleepAtOrBelow: 5}).
			WithPolicy(ghbridge.CategorySearch, ghbridge.LiteralValuePolicy{SleepAtOrBelow: 1}),
	}

	if o.appID == "" {
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			cfg.Credential = ghbridge.BearerCredential{Token: token}
		}
		return ghbridge.NewGitHubBridge(cfg)
	}

	if o.privateKeyPath == "" {
		return nil, errors.New("--private-key is required with --app-id")
	}
	data, err := os.ReadFile(o.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	key, err := ghbridge.ParseAppPrivateKey(data, os.Getenv("GITHUB_APP_KEY_PASSWORD"))
	if err != nil {
		return nil, err
	}
	appCredential, err := ghbridge.NewAppCredential(o.appID, key)
	if err != nil {
		return nil, err
	}
	cfg.Credential = appCredential
	if o.installationID == 0 {
		return ghbridge.NewGitHubBridge(cfg)
	}

	appBridge, err := ghbridge.NewGitHubBridge(cfg)
	if err != nil {
		return nil, err
	}
	installationCfg := *cfg
	installationCfg.Credential = ghbridge.NewInstallationCredential(appBridge, o.installationID)
	return ghbridge.NewGitHubBridge(&installationCfg)
}

func newRateLimitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rate-limit",
		Short: "Show the current rate limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridge, err := opts.bridge(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			snapshot, err := bridge.RateLimit(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "CATEGORY\tREMAINING\tLIMIT\tRESET")
			for _, category := range []ghbridge.RateLimitCategory{
				ghbridge.CategoryCore,
				ghbridge.CategorySearch,
				ghbridge.CategoryGraphQL,
				ghbridge.CategoryIntegrationManifest,
			} {
				record := snapshot.Record(category)
				if record.IsUnknown() {
					_, _ = fmt.Fprintf(w, "%s\tunknown\tunknown\t-\n", category)
					continue
				}
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", category, record.Remaining, record.Limit,
					record.ResetDate().UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	var (
		maxItems int
		perPage  int
		search   bool
		field    string
		params   []string
	)
	cmd := &cobra.Command{
		Use:   "list <path>",
		Short: "Page through a list endpoint and print items as JSON lines",
		Example: `  ghbridge list /orgs/golang/repos --per-page 100
  ghbridge list /search/issues --search --param "q=repo:golang/go is:open" --max 50
  ghbridge list /repos/golang/go/actions/runs --field workflow_runs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge, err := opts.bridge(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			builder := bridge.CreateRequest().WithURLPath(args[0])
			for _, param := range params {
				key, value, ok := strings.Cut(param, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q, expected key=value", param)
				}
				builder.WithParam(key, value)
			}
			req, err := builder.Build()
			if err != nil {
				return err
			}

			var items *ghbridge.PagedIterable[json.RawMessage]
			switch {
			case search:
				results := ghbridge.Search[json.RawMessage](bridge, req, nil).WithPageSize(perPage)
				total, err := results.TotalCount(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "total_count: %d\n", total)
				items = results.PagedIterable
			case field != "":
				items = ghbridge.ListWrapped[json.RawMessage](bridge, req, field, nil).WithPageSize(perPage)
			default:
				items = ghbridge.List[json.RawMessage](bridge, req, nil).WithPageSize(perPage)
			}

			count := 0
			for item, err := range items.All(cmd.Context()) {
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(item)); err != nil {
					return err
				}
				count++
				if maxItems > 0 && count >= maxItems {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxItems, "max", 0, "stop after this many items (0 = all)")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "items per page (0 = server default)")
	cmd.Flags().BoolVar(&search, "search", false, "the endpoint is a search endpoint")
	cmd.Flags().StringVar(&field, "field", "", "the endpoint nests items under this field")
	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter key=value (repeatable)")
	return cmd
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridge, err := opts.bridge(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			user, err := bridge.Myself(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d)\n", user.Login, user.ID)
			return err
		},
	}
}
