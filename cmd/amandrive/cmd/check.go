package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandrive/internal/api"
	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/daemon"
	driveerrors "github.com/Aman-CERP/amandrive/internal/errors"
	"github.com/Aman-CERP/amandrive/internal/output"
	"github.com/Aman-CERP/amandrive/internal/preflight"
	"github.com/Aman-CERP/amandrive/internal/validation"
)

type checkOptions struct {
	system    bool
	audit     bool
	relevance string
	format    string
	local     bool
}

// checkReport is the JSON form of 'amandrive check'.
type checkReport struct {
	System     []preflight.CheckResult `json:"system,omitempty"`
	Consistent bool                    `json:"consistent"`
	Audit      *api.AuditReport        `json:"audit,omitempty"`
	Relevance  *validation.Result      `json:"relevance,omitempty"`
}

func newCheckCmd(ro *rootOptions) *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check index consistency",
		Long: `Compare the index with the metadata store.

The quick check passes when the index holds more live entries than the
store holds file records. --audit compares every entry and lists orphans
(indexed but unknown to the store) and missing records (stored but not
indexed). --system also runs the environment checks 'serve' runs on first
start. --relevance runs the searches of a query file against the drive and
fails when a tier1 file does not rank first, a tier2 file is not on the
first page or a forbidden file shows up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.prepare()
			if err != nil {
				return err
			}
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unknown format %q (use text or json)", opts.format)
			}
			return runCheck(cmd, cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.system, "system", false, "Also run environment checks")
	cmd.Flags().BoolVar(&opts.audit, "audit", false, "Compare every index entry with the store")
	cmd.Flags().StringVar(&opts.relevance, "relevance", "", "Run the relevance checks in this query file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Open the index directly instead of using a running server")
	return cmd
}

func runCheck(cmd *cobra.Command, cfg *config.Config, opts checkOptions) error {
	ctx := cmd.Context()
	var report checkReport

	var queries *validation.QueryFile
	if opts.relevance != "" {
		qf, err := validation.LoadQueries(opts.relevance)
		if err != nil {
			return driveerrors.ValidationError("invalid relevance query file", err).
				WithDetail("path", opts.relevance)
		}
		queries = qf
	}

	client := remote(cfg, opts.local)
	if opts.system {
		report.System = systemChecks(cmd, cfg, client != nil)
	}

	if client != nil {
		consistent, err := client.CheckConsistency(ctx)
		if err != nil {
			return err
		}
		report.Consistent = consistent
		if opts.audit {
			if report.Audit, err = client.Audit(ctx); err != nil {
				return err
			}
		}
		if queries != nil {
			report.Relevance = validation.NewValidator(client, 0).RunAll(ctx, queries)
		}
	} else {
		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()
		if report.Consistent, err = e.CheckConsistency(ctx); err != nil {
			return err
		}
		if opts.audit {
			res, err := e.Audit(ctx)
			if err != nil {
				return err
			}
			r := api.NewAuditReport(res)
			report.Audit = &r
		}
		if queries != nil {
			report.Relevance = validation.NewValidator(e, 0).RunAll(ctx, queries)
		}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printCheck(cmd, report)
	}

	if !report.Consistent || (report.Audit != nil && !report.Audit.Consistent) {
		return driveerrors.New(driveerrors.ErrCodeCorruptIndex, "index and metadata store disagree", nil).
			WithSuggestion("Run 'amandrive reindex' to rebuild the index")
	}
	if report.Relevance != nil && !report.Relevance.Passed() {
		return driveerrors.New(driveerrors.ErrCodeSearchFailed,
			fmt.Sprintf("%d relevance checks failed", len(report.Relevance.Failures())), nil)
	}
	return nil
}

// systemChecks runs the preflight checks. A running server holds the index
// lock, so its check is reported as passing.
func systemChecks(cmd *cobra.Command, cfg *config.Config, serverRunning bool) []preflight.CheckResult {
	results := preflight.New().RunAll(cmd.Context(), cfg)
	if !serverRunning {
		return results
	}
	pid, _ := daemon.ForDataDir(cfg.Storage.DataDir).Read()
	for i, r := range results {
		if r.Name == "index_lock" {
			results[i] = preflight.CheckResult{
				Name:     r.Name,
				Status:   preflight.StatusPass,
				Message:  fmt.Sprintf("held by the running server (pid %d)", pid),
				Required: r.Required,
			}
		}
	}
	return results
}

func printCheck(cmd *cobra.Command, report checkReport) {
	if report.System != nil {
		preflight.New(preflight.WithOutput(cmd.OutOrStdout())).PrintResults(report.System)
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	out := output.New(cmd.OutOrStdout())
	if report.Consistent {
		out.Success("Index holds more live entries than the store holds files")
	} else {
		out.Error("Index holds no more live entries than the store holds files")
	}

	if report.Audit != nil {
		printAudit(out, report.Audit)
	}
	if report.Relevance != nil {
		printRelevance(out, report.Relevance)
	}
}

func printAudit(out *output.Writer, a *api.AuditReport) {
	out.Newline()
	out.Header("Audit")
	out.KeyValue("Indexed", a.Indexed)
	out.KeyValue("Stored", a.Stored)
	out.KeyValue("Duration", fmt.Sprintf("%dms", a.DurationMS))
	if len(a.Orphans) > 0 {
		out.Warningf("%d orphan entries (indexed, not stored)", len(a.Orphans))
		for _, id := range limit(a.Orphans, 20) {
			out.Dim("  " + id)
		}
	}
	if len(a.Missing) > 0 {
		out.Warningf("%d missing entries (stored, not indexed)", len(a.Missing))
		for _, id := range limit(a.Missing, 20) {
			out.Dim("  " + id)
		}
	}
	if a.Consistent {
		out.Success("Every stored file is indexed and every entry is stored")
	}
}

func printRelevance(out *output.Writer, r *validation.Result) {
	out.Newline()
	out.Header("Relevance")
	out.KeyValue("Tier 1", fmt.Sprintf("%d/%d", r.Tier1Pass, r.Tier1Total))
	out.KeyValue("Tier 2", fmt.Sprintf("%d/%d", r.Tier2Pass, r.Tier2Total))
	out.KeyValue("Negative", fmt.Sprintf("%d/%d", r.NegPass, r.NegTotal))
	for _, f := range r.Failures() {
		msg := fmt.Sprintf("%s %q (owner %s)", f.Spec.ID, f.Spec.Query, f.Spec.Owner)
		switch {
		case f.Error != "":
			msg += ": " + f.Error
		case f.MatchedAt > 0:
			msg += fmt.Sprintf(": expected file ranked %d", f.MatchedAt+1)
		case f.Spec.Tier > 0 && f.MatchedAt < 0:
			msg += ": expected file not on the first page"
		default:
			msg += ": forbidden file returned"
		}
		out.Error(msg)
	}
	if r.Passed() {
		out.Success("All relevance checks passed")
	}
}

func limit(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}
