package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/contentql/internal/app"
	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/export"
	"github.com/rpattn/contentql/internal/search"
)

var (
	queryOrg   string
	queryScope string
	exportFmt  string
	exportOut  string
	queryCmd   = &cobra.Command{
		Use:   "query [request.json|-]",
		Short: "Run one search request and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	exportCmd = &cobra.Command{
		Use:   "export [request.json|-]",
		Short: "Export every page of a search request as CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
)

func init() {
	for _, c := range []*cobra.Command{queryCmd, exportCmd} {
		c.Flags().StringVar(&queryOrg, "org", "", "organization id to search as")
		c.Flags().StringVar(&queryScope, "scope", "", "optional scope as JSON")
		_ = c.MarkFlagRequired("org")
		rootCmd.AddCommand(c)
	}
	exportCmd.Flags().StringVar(&exportFmt, "format", "csv", "csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
}

type commandInput struct {
	tenant uuid.UUID
	scope  *search.Scope
	req    domain.SearchRequest
}

func readInput(path string) (commandInput, error) {
	var in commandInput
	tenant, err := uuid.Parse(queryOrg)
	if err != nil || tenant == uuid.Nil {
		return in, fmt.Errorf("--org must be a non-nil uuid")
	}
	in.tenant = tenant
	if queryScope != "" {
		in.scope = &search.Scope{}
		if err := json.Unmarshal([]byte(queryScope), in.scope); err != nil {
			return in, fmt.Errorf("invalid --scope: %w", err)
		}
	}

	var body []byte
	if path == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return in, fmt.Errorf("read request: %w", err)
	}
	in.req, err = search.ParseRequest(body)
	return in, err
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	in, err := readInput(args[0])
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Search.Search(cmd.Context(), in.tenant, in.scope, in.req)
	if err != nil {
		return err
	}
	if result.Results == nil {
		result.Results = []domain.Record{}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	in, err := readInput(args[0])
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(exportFmt)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	summary, err := a.Export.Export(cmd.Context(), in.tenant, in.scope, in.req, format, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows (truncated: %t)\n", summary.Rows, summary.Truncated)
	return nil
}
