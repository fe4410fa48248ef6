// cmd/lca-disclosure/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	apphttp "lca-assistant/internal/common/http"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/models"
	dl "lca-assistant/internal/workers/web-sources/disclosure-links"
)

var (
	pageURL   string
	timeout   time.Duration
	verbose   bool
	year      int
	quarter   int
	outputArg string
)

var rootCmd = &cobra.Command{
	Use:   "lca-disclosure",
	Short: "Find and download DOL LCA disclosure workbooks",
	Long: `Lists the quarterly LCA_Disclosure_Data_FY<year>_Q<quarter>.xlsx files
linked from the DOL OFLC performance data page.

Available subcommands:
  list     - List every published workbook
  latest   - Show the newest workbook, optionally for one year/quarter
  download - Download the newest matching workbook`,
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List published disclosure workbooks",
	RunE:  runList,
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the newest disclosure workbook",
	RunE:  runLatest,
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the newest matching disclosure workbook",
	RunE:  runDownload,
}

func init() {
	defaults := dl.LoadConfig()

	rootCmd.PersistentFlags().StringVar(&pageURL, "page-url", defaults.PageURL, "DOL performance data page")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaults.Timeout, "page fetch timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, cmd := range []*cobra.Command{listCmd, latestCmd, downloadCmd} {
		cmd.Flags().IntVar(&year, "year", 0, "fiscal year, e.g. 2024")
	}
	latestCmd.Flags().IntVar(&quarter, "quarter", 0, "fiscal quarter 1-4 (requires --year for a single file)")
	downloadCmd.Flags().IntVar(&quarter, "quarter", 0, "fiscal quarter 1-4")
	downloadCmd.Flags().StringVarP(&outputArg, "output", "o", ".", "output file or directory")

	rootCmd.AddCommand(listCmd, latestCmd, downloadCmd)
}

func newHandler() *dl.Handler {
	level := "warn"
	if verbose {
		level = "debug"
	}
	client := apphttp.NewClient(0, "")
	return dl.NewHandler(
		&dl.Config{
			PageURL: pageURL,
			Timeout: timeout,
		},
		client, client,
		logger.NewStructured(level, "console"),
	)
}

func runList(cmd *cobra.Command, args []string) error {
	files, err := newHandler().ListFiles(cmd.Context())
	if err != nil {
		return err
	}
	files = dl.Select(files, dl.Selection{FiscalYear: year})
	if len(files) == 0 {
		pterm.Warning.Println("No disclosure workbooks found")
		return nil
	}

	data := pterm.TableData{{"FY", "Quarter", "File", "URL"}}
	for _, f := range files {
		data = append(data, []string{strconv.Itoa(f.FiscalYear), "Q" + strconv.Itoa(f.Quarter), f.FileName, f.URL})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runLatest(cmd *cobra.Command, args []string) error {
	file, err := latest(cmd.Context())
	if err != nil {
		return err
	}
	pterm.Success.Printfln("FY%d Q%d: %s", file.FiscalYear, file.Quarter, file.FileName)
	fmt.Println(file.URL)
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	h := newHandler()

	file, err := latestWith(ctx, h)
	if err != nil {
		return err
	}

	target := outputArg
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, file.FileName)
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	start := time.Now()
	n, err := h.Download(ctx, *file, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return err
	}

	pterm.Success.Printfln("Saved %s (%s) in %s", target, humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
	return nil
}

func latest(ctx context.Context) (*models.DisclosureFile, error) {
	return latestWith(ctx, newHandler())
}

func latestWith(ctx context.Context, h *dl.Handler) (*models.DisclosureFile, error) {
	file, err := h.Latest(ctx, dl.Selection{FiscalYear: year, Quarter: quarter})
	if errors.Is(err, dl.ErrNoDisclosureFiles) {
		return nil, fmt.Errorf("no disclosure workbook matches year=%d quarter=%d", year, quarter)
	}
	return file, err
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
