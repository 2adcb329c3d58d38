package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/axia-cli/internal/config"
	"github.com/sells-group/axia-cli/internal/intel"
	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/sources"
)

var (
	fetchCompanyID int64
	fetchForce     bool
	fetchJSON      bool
	fetchAllLimit  int
	findName       string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch web intelligence for one company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeFetch); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		company, err := st.GetCompany(ctx, fetchCompanyID)
		if err != nil {
			return err
		}

		summary, err := newOrchestrator(cfg, st).FetchAll(ctx, company, fetchForce)
		if err != nil {
			return eris.Wrapf(err, "fetch company %d", fetchCompanyID)
		}

		if fetchJSON {
			return writeJSON(cmd.OutOrStdout(), summary)
		}
		formatSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

var fetchAllCmd = &cobra.Command{
	Use:   "fetch-all",
	Short: "Fetch web intelligence for many companies concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeFetch); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		companies, err := st.ListCompanies(ctx, fetchAllLimit)
		if err != nil {
			return err
		}

		orch := newOrchestrator(cfg, st)
		ok, failed := processCompanies(ctx, companies, cfg.Batch.MaxConcurrentCompanies, func(ctx context.Context, c *model.Company) (*intel.Summary, error) {
			return orch.FetchAll(ctx, c, fetchForce)
		})
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "fetched %d companies, %d failed\n", ok, failed)
		return ctx.Err()
	},
}

var findWebsiteCmd = &cobra.Command{
	Use:   "find-website",
	Short: "Look up a company website by name",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeFetch); err != nil {
			return err
		}
		orch := intel.New(newSearchClient(cfg.Search), newPageFetcher(cfg.Fetch), nil)
		website, ok := orch.FindWebsite(cmd.Context(), findName)
		if !ok {
			return eris.Errorf("no website found for %q", findName)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), website)
		return nil
	},
}

const forceUsage = "record the run as a forced refresh in the logs (website discovery is still skipped when a website is known)"

func init() {
	fetchCmd.Flags().Int64Var(&fetchCompanyID, "company-id", 0, "company to fetch")
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, forceUsage)
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print the summary as JSON")
	_ = fetchCmd.MarkFlagRequired("company-id")

	fetchAllCmd.Flags().IntVar(&fetchAllLimit, "limit", 100, "max number of companies to fetch")
	fetchAllCmd.Flags().BoolVar(&fetchForce, "force", false, forceUsage)

	findWebsiteCmd.Flags().StringVar(&findName, "name", "", "company name")
	_ = findWebsiteCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(fetchCmd, fetchAllCmd, findWebsiteCmd)
}

// fetchFunc runs the fetch pipeline for one company.
type fetchFunc func(ctx context.Context, c *model.Company) (*intel.Summary, error)

// processCompanies fetches companies with at most concurrency pipelines in
// flight. Each pipeline stays sequential inside. A failed company is logged
// and does not stop the others.
func processCompanies(ctx context.Context, companies []model.Company, concurrency int, fetch fetchFunc) (succeeded, failed int64) {
	if len(companies) == 0 {
		zap.L().Info("no companies to fetch")
		return 0, 0
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("fetching companies",
		zap.Int("companies", len(companies)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var ok, bad atomic.Int64
	for i := range companies {
		company := &companies[i]
		g.Go(func() error {
			log := zap.L().With(zap.Int64("company_id", company.ID), zap.String("company", company.Name))
			if gctx.Err() != nil {
				bad.Add(1)
				return nil
			}

			if _, err := fetch(gctx, company); err != nil {
				bad.Add(1)
				log.Error("fetch failed", zap.Error(err))
				return nil // don't abort the batch on one failure
			}

			ok.Add(1)
			log.Info("fetch complete")
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete", zap.Int64("succeeded", ok.Load()), zap.Int64("failed", bad.Load()))
	return ok.Load(), bad.Load()
}

// formatSummary renders the per-source status table followed by the
// impressum and LinkedIn facts.
func formatSummary(out io.Writer, s *intel.Summary) {
	_, _ = fmt.Fprintf(out, "%s (id %d) fetched %s\n\n", s.CompanyName, s.CompanyID, s.FetchedAt.UTC().Format("2006-01-02 15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tSTATUS\tURL")
	_, _ = fmt.Fprintln(w, "------\t------\t---")

	website := sources.Status("skipped")
	websiteURL := ""
	if s.Sources.Website != nil {
		website = s.Sources.Website.Status
		websiteURL = s.Sources.Website.BaseURL
	}
	_, _ = fmt.Fprintf(w, "website\t%s\t%s\n", website, websiteURL)
	if li := s.Sources.LinkedIn; li != nil {
		_, _ = fmt.Fprintf(w, "linkedin\t%s\t%s\n", li.Status, li.URL)
	}
	if k := s.Sources.Kununu; k != nil {
		_, _ = fmt.Fprintf(w, "kununu\t%s\t%s\n", k.Status, k.URL)
	}
	_ = w.Flush()

	if s.Sources.Website != nil {
		writeFacts(out, "Impressum", s.Sources.Website.Impressum)
	}
	if s.Sources.LinkedIn != nil {
		writeFacts(out, "LinkedIn", s.Sources.LinkedIn.Facts)
	}
	if k := s.Sources.Kununu; k != nil && k.Rating != "" {
		_, _ = fmt.Fprintf(out, "\nKununu rating: %s\n", k.Rating)
	}
}

func writeFacts(out io.Writer, title string, facts map[string]string) {
	if len(facts) == 0 {
		return
	}
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(out, "\n%s:\n", title)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", k, facts[k])
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}
