package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/prompts"
	"github.com/sells-group/axia-cli/internal/store"
)

var (
	seedFile string

	companyName          string
	companyWebsite       string
	companyBusinessModel string
	companyCofounders    int
	companyEmployees     int

	runCompanyID int64
	runTodos     []string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage prompt templates",
}

var promptsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert prompt templates from a YAML file or the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tmpls := prompts.Defaults()
		if seedFile != "" {
			var err error
			if tmpls, err = prompts.Load(seedFile); err != nil {
				return err
			}
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return seedTemplates(ctx, st, tmpls, cmd.OutOrStdout())
	},
}

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Manage companies",
}

var companyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c := &model.Company{
			Name:           strings.TrimSpace(companyName),
			Website:        model.NormalizeWebsite(companyWebsite),
			BusinessModel:  companyBusinessModel,
			TeamCofounders: companyCofounders,
			TeamEmployees:  companyEmployees,
		}
		if c.Name == "" {
			return eris.New("company name is required")
		}
		if err := st.CreateCompany(ctx, c); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "company %d created\n", c.ID)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage todo runs",
}

var runCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a run with todos for a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, n, err := createRun(ctx, st, runCompanyID, runTodos)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %d created with %d todos\n", run.ID, n)
		return nil
	},
}

func init() {
	promptsSeedCmd.Flags().StringVar(&seedFile, "file", "", "YAML seed file (defaults to the built-in templates)")
	promptsCmd.AddCommand(promptsSeedCmd)

	companyAddCmd.Flags().StringVar(&companyName, "name", "", "company name")
	companyAddCmd.Flags().StringVar(&companyWebsite, "website", "", "company website")
	companyAddCmd.Flags().StringVar(&companyBusinessModel, "business-model", "", "business model, e.g. b2b_saas")
	companyAddCmd.Flags().IntVar(&companyCofounders, "cofounders", 0, "number of co-founders")
	companyAddCmd.Flags().IntVar(&companyEmployees, "employees", 0, "number of employees")
	_ = companyAddCmd.MarkFlagRequired("name")
	companyCmd.AddCommand(companyAddCmd)

	runCreateCmd.Flags().Int64Var(&runCompanyID, "company-id", 0, "company the run belongs to")
	runCreateCmd.Flags().StringArrayVar(&runTodos, "todo", nil, "todo text (repeatable)")
	_ = runCreateCmd.MarkFlagRequired("company-id")
	runCmd.AddCommand(runCreateCmd)

	rootCmd.AddCommand(promptsCmd, companyCmd, runCmd)
}

func seedTemplates(ctx context.Context, st store.TemplateStore, tmpls []model.PromptTemplate, out io.Writer) error {
	for i := range tmpls {
		t := &tmpls[i]
		if err := st.UpsertTemplate(ctx, t); err != nil {
			return err
		}
		zap.L().Info("prompt template seeded", zap.String("type", t.Type), zap.String("version", t.Version), zap.Bool("active", t.IsActive))
		_, _ = fmt.Fprintf(out, "%s %s (id %d, active=%t)\n", t.Type, t.Version, t.ID, t.IsActive)
	}
	return nil
}

// createRun stores a run for companyID with one todo per non-blank entry.
func createRun(ctx context.Context, st store.Store, companyID int64, texts []string) (*model.Run, int64, error) {
	if _, err := st.GetCompany(ctx, companyID); err != nil {
		return nil, 0, err
	}

	var todos []model.Todo
	for _, text := range texts {
		if text = strings.TrimSpace(text); text != "" {
			todos = append(todos, model.Todo{RawInput: text})
		}
	}
	if len(todos) == 0 {
		return nil, 0, eris.New("at least one --todo is required")
	}

	run, err := st.CreateRun(ctx, companyID)
	if err != nil {
		return nil, 0, err
	}
	n, err := st.AddTodos(ctx, run.ID, todos)
	if err != nil {
		return nil, 0, err
	}
	return run, n, nil
}
