package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/extract"
	"github.com/Aman-CERP/amandrive/internal/output"
	"github.com/Aman-CERP/amandrive/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	owner     string
	category  string
	pathDir   string
	folders   bool
	files     bool
	favorites bool
	sort      string
	order     string
	page      int
	pageSize  int
	format    string // "text", "json"
	local     bool
}

func newSearchCmd(ro *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search one owner's files",
		Long: `Search one owner's files by name, tag and content.

Exact and substring name matches rank above tag matches, which rank above
content matches.

Examples:
  amandrive search BetterDisplay --owner alice
  amandrive search "quarterly report" --owner alice --category document
  amandrive search invoice --owner bob --sort modified --order desc --page 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.prepare()
			if err != nil {
				return err
			}
			req, err := opts.request(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd, cfg, req, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.owner, "owner", "o", "", "Owner whose files are searched (required)")
	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "Filter by category: image, video, audio, document, other")
	cmd.Flags().StringVar(&opts.pathDir, "path", "", "Only files under this folder, e.g. /docs")
	cmd.Flags().BoolVar(&opts.folders, "folders", false, "Only folders")
	cmd.Flags().BoolVar(&opts.files, "files", false, "Only files")
	cmd.Flags().BoolVar(&opts.favorites, "favorites", false, "Only favorites")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "Sort by: relevance, modified, size")
	cmd.Flags().StringVar(&opts.order, "order", "asc", "Sort direction for modified and size: asc, desc")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Page number, from 1")
	cmd.Flags().IntVarP(&opts.pageSize, "page-size", "n", 0, "Results per page (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Open the index directly instead of using a running server")
	_ = cmd.MarkFlagRequired("owner")
	cmd.MarkFlagsMutuallyExclusive("folders", "files")

	return cmd
}

func (o searchOptions) request(keyword string) (search.Request, error) {
	req := search.Request{
		OwnerID:    o.owner,
		Keyword:    keyword,
		PathPrefix: o.pathDir,
		SortField:  search.ParseSortField(o.sort),
		Descending: search.IsDescending(o.order),
		Page:       o.page,
		PageSize:   o.pageSize,
	}
	if o.category != "" {
		c, ok := extract.ParseCategory(o.category)
		if !ok {
			return req, fmt.Errorf("unknown category %q", o.category)
		}
		req.Category = string(c)
	}
	if o.folders || o.files {
		folder := o.folders
		req.IsFolder = &folder
	}
	if o.favorites {
		fav := true
		req.IsFavorite = &fav
	}
	switch o.format {
	case "text", "json":
	default:
		return req, fmt.Errorf("unknown format %q (use text or json)", o.format)
	}
	return req, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, req search.Request, opts searchOptions) error {
	var (
		resp *search.Response
		err  error
	)
	if c := remote(cfg, opts.local); c != nil {
		resp, err = c.Search(ctx, req)
	} else {
		e, oerr := openEngine(cfg)
		if oerr != nil {
			return oerr
		}
		defer func() { _ = e.Close() }()
		resp, err = e.Search(ctx, req)
	}
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(output.New(cmd.OutOrStdout()), req.Keyword, resp)
	return nil
}

func printResults(out *output.Writer, keyword string, resp *search.Response) {
	if resp.TotalCount == 0 {
		out.Statusf("🔍", "No results for %q", keyword)
		return
	}
	first := (resp.Page-1)*resp.PageSize + 1
	last := first + len(resp.Files) - 1
	if len(resp.Files) == 0 {
		out.Statusf("🔍", "%d results for %q, none on page %d", resp.TotalCount, keyword, resp.Page)
		return
	}
	out.Statusf("🔍", "%d-%d of %d results for %q", first, last, resp.TotalCount, keyword)
	out.Newline()

	rows := make([][]string, 0, len(resp.Files))
	for _, f := range resp.Files {
		name, size := f.Name, output.HumanBytes(f.Size)
		if f.IsFolder {
			name += "/"
			size = "-"
		}
		modified := ""
		if !f.ModTime.IsZero() {
			modified = f.ModTime.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{name, path.Clean(f.Path), size, modified, f.ID})
	}
	out.Table([]string{"NAME", "FOLDER", "SIZE", "MODIFIED", "ID"}, rows)
}
