// Package cli implements the command-line interface for the IP range
// aggregator.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/controller"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/refresh"
)

// Version is stamped at build time with -ldflags
var Version = "dev"

// CLI encapsulates the command-line interface
type CLI struct {
	rootCmd    *cobra.Command
	configPath string
	verbose    bool
	ctrlOpts   []controller.Option
}

// New creates a new CLI instance. opts are passed to every controller the
// commands create.
func New(opts ...controller.Option) *CLI {
	cli := &CLI{ctrlOpts: opts}
	cli.buildCommands()
	return cli
}

// Execute runs the CLI
func (c *CLI) Execute() error {
	return c.rootCmd.Execute()
}

// buildCommands constructs the command tree
func (c *CLI) buildCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "ipranges",
		Short: "Aggregate the published IP ranges of cloud and CDN providers",
		Long: `ipranges periodically downloads the IP range publications of AWS, Azure,
Cloudflare, Fastly, GCP, Linode, Oracle and DigitalOcean, keeps the last
good copy of each in memory, and answers filtered queries over HTTP.

A provider whose upstream is failing keeps serving its previous data.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to config.yaml (default: search the working and executable directories)")
	c.rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	c.rootCmd.AddCommand(c.serveCmd())
	c.rootCmd.AddCommand(c.refreshCmd())
	c.rootCmd.AddCommand(c.providersCmd())
	c.rootCmd.AddCommand(c.queryCmd())
}

// loadConfig reads the configuration. One-shot commands log warnings only
// unless --verbose is set, so their stdout stays readable.
func (c *CLI) loadConfig(oneShot bool) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if oneShot && !c.verbose {
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

func (c *CLI) newController(ctx context.Context, cfg *config.Config) (*controller.Controller, error) {
	ctrl, err := controller.New(ctx, cfg, c.ctrlOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return ctrl, nil
}

// serveCmd creates the serve command
func (c *CLI) serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh periodically and serve the query API",
		Example: `  ipranges serve
  ipranges serve --port 9000 --config /etc/ipranges/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(false)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl, err := c.newController(ctx, cfg)
			if err != nil {
				return err
			}
			return ctrl.Serve(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8000, "Port to serve the query API on")
	return cmd
}

// refreshCmd creates the refresh command
func (c *CLI) refreshCmd() *cobra.Command {
	var (
		providers    []string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and report each provider's outcome",
		Long: `Run one refresh cycle and report each provider's outcome.

The command exits with a non-zero status if any provider failed.`,
		Example: `  ipranges refresh
  ipranges refresh --provider aws --provider gcp --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := parseProviderNames(providers)
			if err != nil {
				return err
			}
			cfg, err := c.loadConfig(true)
			if err != nil {
				return err
			}
			ctrl, err := c.newController(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer ctrl.Close(context.Background())

			report, refreshErr := ctrl.Refresh(cmd.Context(), names...)
			if len(report.Outcomes) == 0 && refreshErr != nil {
				return refreshErr
			}

			out := cmd.OutOrStdout()
			switch outputFormat {
			case "json":
				err = displayReportJSON(out, report)
			default:
				err = displayReportTable(out, report)
			}
			if err != nil {
				return err
			}
			if refreshErr != nil {
				return fmt.Errorf("refresh failed: %w", refreshErr)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&providers, "provider", "p", nil, "Provider to refresh (repeatable, default: all enabled)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// providersCmd creates the providers command
func (c *CLI) providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the enabled providers and their upstreams",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(true)
			if err != nil {
				return err
			}
			ctrl, err := c.newController(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer ctrl.Close(context.Background())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tUPSTREAM")
			fmt.Fprintln(w, "--------\t--------")
			for _, p := range ctrl.Providers() {
				fmt.Fprintf(w, "%s\t%s\n", p.Name, strings.Join(p.Upstreams, ", "))
			}
			return w.Flush()
		},
	}
}

// queryCmd creates the query command
func (c *CLI) queryCmd() *cobra.Command {
	var (
		params       []string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "query <provider>",
		Short: "Fetch one provider and print the prefixes matching the filters",
		Long: `Fetch one provider and print the prefixes matching the filters.

Filters are the query parameters of the HTTP API, for example region,
service, network_border_group, scope, system_service, alpha2code, tag,
name, ipv4 and ipv6.`,
		Example: `  ipranges query aws --param region=us-east-1 --param ipv4=true
  ipranges query linode --param alpha2code=us --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := domain.ParseProviderName(args[0])
			if err != nil {
				return err
			}
			values, err := parseParams(params)
			if err != nil {
				return err
			}
			cfg, err := c.loadConfig(true)
			if err != nil {
				return err
			}
			ctrl, err := c.newController(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer ctrl.Close(context.Background())

			if _, err := ctrl.Refresh(cmd.Context(), name); err != nil {
				return err
			}
			prefixes, err := ctrl.Query(name, values)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputFormat == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(prefixes)
			}
			for _, p := range prefixes {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Filter as key=value (repeatable)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "lines", "Output format (lines, json)")
	return cmd
}

// displayReportTable shows a cycle's outcomes as a table
func displayReportTable(w io.Writer, report refresh.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSTATUS\tDURATION\tFINGERPRINT\tERROR")
	fmt.Fprintln(tw, "--------\t------\t--------\t-----------\t-----")
	for _, o := range report.Sorted() {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.Provider,
			o.Status,
			o.Duration.Round(time.Millisecond),
			o.Fingerprint,
			errText,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nexecution %s: %d published, %d unchanged, %d failed, %d skipped in %s\n",
		report.ExecutionID,
		report.Count(refresh.StatusPublished),
		report.Count(refresh.StatusUnchanged),
		report.Count(refresh.StatusFailed),
		report.Count(refresh.StatusSkipped),
		report.Duration().Round(time.Millisecond),
	)
	return nil
}

type reportJSON struct {
	ExecutionID string        `json:"execution_id"`
	Started     time.Time     `json:"started"`
	DurationMS  int64         `json:"duration_ms"`
	Outcomes    []outcomeJSON `json:"outcomes"`
}

type outcomeJSON struct {
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	DurationMS  int64  `json:"duration_ms"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}

// displayReportJSON shows a cycle's outcomes in JSON format
func displayReportJSON(w io.Writer, report refresh.Report) error {
	out := reportJSON{
		ExecutionID: report.ExecutionID.String(),
		Started:     report.Started,
		DurationMS:  report.Duration().Milliseconds(),
		Outcomes:    []outcomeJSON{},
	}
	for _, o := range report.Sorted() {
		oj := outcomeJSON{
			Provider:    o.Provider.String(),
			Status:      string(o.Status),
			DurationMS:  o.Duration.Milliseconds(),
			Fingerprint: o.Fingerprint,
		}
		if o.Err != nil {
			oj.Error = o.Err.Error()
		}
		out.Outcomes = append(out.Outcomes, oj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseProviderNames(raw []string) ([]domain.ProviderName, error) {
	var names []domain.ProviderName
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			name, err := domain.ParseProviderName(part)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
	}
	return names, nil
}

func parseParams(raw []string) (url.Values, error) {
	values := url.Values{}
	for _, p := range raw {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, domain.NewValidationError("param", fmt.Sprintf("expected key=value, got %q", p))
		}
		values.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return values, nil
}
