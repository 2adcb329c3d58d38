package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/axia-cli/internal/analysis"
	"github.com/sells-group/axia-cli/internal/model"
)

var (
	analyzeRunID  int64
	extractFile   string
	chatCompanyID int64
	chatMessage   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score the todos of a run against the company's goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := newAnalyzer(cfg, st)
		if err != nil {
			return err
		}

		run, err := st.GetRun(ctx, analyzeRunID)
		if err != nil {
			return err
		}
		todos, err := st.ListTodos(ctx, run.ID)
		if err != nil {
			return err
		}
		if len(todos) == 0 {
			return eris.Errorf("run %d has no todos", run.ID)
		}
		company, err := st.GetCompany(ctx, run.CompanyID)
		if err != nil {
			return err
		}

		result, err := a.AnalyzeTodos(ctx, *run, todos, company)
		if err != nil {
			return configHint(err)
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured data from free text",
}

var extractCompanyCmd = &cobra.Command{
	Use:   "company",
	Short: "Extract company facts from text",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd, (*analysis.Analyzer).ExtractCompanyFacts)
	},
}

var extractGoalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Extract goals and KPIs from text",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd, (*analysis.Analyzer).ExtractGoalsAndKPIs)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask a strategic question, optionally in the context of a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := newAnalyzer(cfg, st)
		if err != nil {
			return err
		}

		var company *model.Company
		if chatCompanyID > 0 {
			if company, err = st.GetCompany(ctx, chatCompanyID); err != nil {
				return err
			}
		}

		reply, err := a.Chat(ctx, chatMessage, company)
		if err != nil {
			return configHint(err)
		}
		_, err = io.WriteString(cmd.OutOrStdout(), reply.Message+"\n")
		return err
	},
}

func init() {
	analyzeCmd.Flags().Int64Var(&analyzeRunID, "run-id", 0, "run whose todos to analyze")
	_ = analyzeCmd.MarkFlagRequired("run-id")

	extractCmd.PersistentFlags().StringVar(&extractFile, "file", "-", "text file to read, - for stdin")
	extractCmd.AddCommand(extractCompanyCmd, extractGoalsCmd)

	chatCmd.Flags().Int64Var(&chatCompanyID, "company-id", 0, "company context (optional)")
	chatCmd.Flags().StringVar(&chatMessage, "message", "", "message to send")
	_ = chatCmd.MarkFlagRequired("message")

	rootCmd.AddCommand(analyzeCmd, extractCmd, chatCmd)
}

type extractFunc func(a *analysis.Analyzer, ctx context.Context, text string) (map[string]any, error)

func runExtract(cmd *cobra.Command, extract extractFunc) error {
	ctx := cmd.Context()
	text, err := readInput(extractFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return eris.New("no input text")
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	a, err := newAnalyzer(cfg, st)
	if err != nil {
		return err
	}

	data, err := extract(a, ctx, text)
	if err != nil {
		return configHint(err)
	}
	return writeJSON(cmd.OutOrStdout(), data)
}

// readInput reads path, or stdin when path is "-" or empty.
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), eris.Wrap(err, "read stdin")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read %s", path)
	}
	return string(b), nil
}

// configHint points at the fix for errors that need a configuration change.
func configHint(err error) error {
	if analysis.IsConfigError(err) {
		return eris.Wrap(err, "check the completion settings and run 'axia-cli prompts seed'")
	}
	return err
}
