package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandrive/internal/daemon"
	"github.com/Aman-CERP/amandrive/internal/engine"
	"github.com/Aman-CERP/amandrive/internal/output"
	"github.com/Aman-CERP/amandrive/internal/preflight"
)

// statusReport is the JSON form of 'amandrive status'.
type statusReport struct {
	Running bool          `json:"running"`
	PID     int           `json:"pid,omitempty"`
	Addr    string        `json:"addr,omitempty"`
	Root    string        `json:"root"`
	DataDir string        `json:"data_dir"`
	Stats   *engine.Stats `json:"stats,omitempty"`
	// PreflightAge is how long ago the system checks last passed.
	PreflightAge string `json:"preflight_age,omitempty"`
}

func newStatusCmd(ro *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server and index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.prepare()
			if err != nil {
				return err
			}

			report := statusReport{Root: cfg.Storage.Root, DataDir: cfg.Storage.DataDir}
			if age := preflight.MarkerAge(cfg.Storage.DataDir); age > 0 {
				report.PreflightAge = age.Round(time.Second).String()
			}
			pidFile := daemon.ForDataDir(cfg.Storage.DataDir)
			if c := remote(cfg, false); c != nil {
				report.Running = true
				report.PID, _ = pidFile.Read()
				report.Addr = cfg.Server.Addr
				if report.Stats, err = c.Stats(cmd.Context()); err != nil {
					return err
				}
			} else {
				e, err := openEngine(cfg)
				if err != nil {
					return err
				}
				defer func() { _ = e.Close() }()
				if report.Stats, err = e.Stats(); err != nil {
					return err
				}
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printStatus(output.New(cmd.OutOrStdout()), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printStatus(out *output.Writer, r statusReport) {
	out.Header("amandrive")
	if r.Running {
		out.KeyValue("Server", fmt.Sprintf("running (pid %d, %s)", r.PID, r.Addr))
	} else {
		out.KeyValue("Server", "stopped")
	}
	out.KeyValue("Root", r.Root)
	out.KeyValue("Data dir", r.DataDir)
	if r.PreflightAge != "" {
		out.KeyValue("Checks passed", r.PreflightAge+" ago")
	}

	s := r.Stats
	if s == nil {
		return
	}
	out.Newline()
	out.Header("Index")
	out.KeyValue("Documents", s.Documents)
	out.KeyValue("Queue", fmt.Sprintf("%d / %d", s.QueueDepth, s.QueueCapacity))
	out.KeyValue("Uncommitted", s.Pending)
	out.KeyValue("Extract cache", s.ExtractCached)
	out.KeyValue("Path", s.IndexPath)

	re := s.Reindex
	out.Newline()
	out.Header("Reindex")
	out.KeyValue("Status", re.Status)
	if re.Stage != "" {
		out.KeyValue("Stage", re.Stage)
	}
	if re.FilesTotal > 0 {
		out.KeyValue("Progress", fmt.Sprintf("%d / %d (%.0f%%)", re.FilesEnqueued+re.FilesSkipped, re.FilesTotal, re.ProgressPct))
	}
	if re.ErrorMessage != "" {
		out.KeyValue("Error", re.ErrorMessage)
	}

	q := s.Queries
	if q == nil || q.TotalQueries == 0 {
		return
	}
	out.Newline()
	out.Header("Searches")
	out.KeyValue("Total", q.TotalQueries)
	out.KeyValue("No results", fmt.Sprintf("%d (%.1f%%)", q.ZeroResultCount, q.ZeroResultPercentage()))
	out.KeyValue("Repeated", fmt.Sprintf("%.1f%%", q.RepeatRate()*100))
	out.KeyValue("Owners", q.ActiveOwners)
	if len(q.TopTerms) > 0 {
		terms := make([]string, 0, 5)
		for _, tc := range q.TopTerms[:min(5, len(q.TopTerms))] {
			terms = append(terms, fmt.Sprintf("%s (%d)", tc.Term, tc.Count))
		}
		out.KeyValue("Top terms", strings.Join(terms, ", "))
	}
}
