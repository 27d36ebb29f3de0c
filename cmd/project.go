package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/pesaplay/mpesa-sim/db"
	"github.com/pesaplay/mpesa-sim/internal/data"
)

// ProjectCommand manages the businesses and projects a sandbox serves.
type ProjectCommand struct{}

func (c *ProjectCommand) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "project",
		Short: "Create and list sandbox projects",
	}

	root.AddCommand(c.createCommand())
	root.AddCommand(c.listCommand())
	return root
}

type createProjectOptions struct {
	businessShortCode string
	businessName      string
	projectName       string
	simulationMode    string
	stkDelayMs        int
	callbackURL       string
}

func (c *ProjectCommand) createCommand() *cobra.Command {
	opts := createProjectOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a business, project and API key triple",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.businessShortCode == "" || opts.businessName == "" || opts.projectName == "" {
				if err := promptForProject(&opts); err != nil {
					return fmt.Errorf("prompting for project details: %w", err)
				}
			}
			return c.run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.businessShortCode, "business-short-code", "", "the business's paybill/till short code")
	cmd.Flags().StringVar(&opts.businessName, "business-name", "", "the business's display name")
	cmd.Flags().StringVar(&opts.projectName, "project-name", "", "the project's display name")
	cmd.Flags().StringVar(&opts.simulationMode, "simulation-mode", string(data.SimulationRealistic), "always_success, always_fail, random or realistic")
	cmd.Flags().IntVar(&opts.stkDelayMs, "stk-delay-ms", 0, "artificial delay before an STK push resolves")
	cmd.Flags().StringVar(&opts.callbackURL, "callback-url", "", "URL the sandbox posts result callbacks to")

	return cmd
}

func promptForProject(opts *createProjectOptions) error {
	shortCode := promptui.Prompt{Label: "Business short code"}
	result, err := shortCode.Run()
	if err != nil {
		return err
	}
	opts.businessShortCode = result

	businessName := promptui.Prompt{Label: "Business display name"}
	result, err = businessName.Run()
	if err != nil {
		return err
	}
	opts.businessName = result

	projectName := promptui.Prompt{Label: "Project display name", Default: opts.businessName}
	result, err = projectName.Run()
	if err != nil {
		return err
	}
	opts.projectName = result

	mode := promptui.Select{
		Label: "Simulation mode",
		Items: []string{
			string(data.SimulationRealistic),
			string(data.SimulationAlwaysSuccess),
			string(data.SimulationAlwaysFail),
			string(data.SimulationRandom),
		},
	}
	_, selected, err := mode.Run()
	if err != nil {
		return err
	}
	opts.simulationMode = selected

	callbackURL := promptui.Prompt{Label: "Callback URL (optional)", AllowEdit: true}
	result, err = callbackURL.Run()
	if err == nil {
		opts.callbackURL = result
	}

	return nil
}

func (c *ProjectCommand) run(ctx context.Context, opts createProjectOptions) error {
	dbConnectionPool, err := db.OpenDBConnectionPool(globalOptions.databaseURL)
	if err != nil {
		return fmt.Errorf("opening database connection pool: %w", err)
	}
	defer dbConnectionPool.Close()

	models, err := data.NewModels(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("creating data models: %w", err)
	}

	var callbackURL *string
	if opts.callbackURL != "" {
		callbackURL = &opts.callbackURL
	}

	result, err := db.RunInTransactionWithResult(ctx, dbConnectionPool, nil, func(dbTx db.DBTransaction) (projectResult, error) {
		business, err := models.Businesses.Create(ctx, dbTx, models.Accounts, data.BusinessInsert{
			DisplayName: opts.businessName,
			ShortCode:   opts.businessShortCode,
		})
		if err != nil {
			return projectResult{}, fmt.Errorf("creating business: %w", err)
		}

		project, err := models.Projects.Insert(ctx, dbTx, data.ProjectInsert{
			BusinessID:     business.ID,
			DisplayName:    opts.projectName,
			CallbackURL:    callbackURL,
			SimulationMode: data.SimulationMode(opts.simulationMode),
			StkDelayMs:     opts.stkDelayMs,
		})
		if err != nil {
			return projectResult{}, fmt.Errorf("creating project: %w", err)
		}

		consumerKey, consumerSecret, passkey, err := data.GenerateAPIKeyTriple()
		if err != nil {
			return projectResult{}, fmt.Errorf("generating api key triple: %w", err)
		}
		apiKey, err := models.APIKeys.Insert(ctx, dbTx, project.ID, consumerKey, consumerSecret, passkey)
		if err != nil {
			return projectResult{}, fmt.Errorf("inserting api key: %w", err)
		}

		return projectResult{project: project, apiKey: apiKey}, nil
	})
	if err != nil {
		return err
	}

	log.Infof("created project %d (%s)", result.project.ID, result.project.DisplayName)
	fmt.Printf("project_id:      %d\n", result.project.ID)
	fmt.Printf("consumer_key:    %s\n", result.apiKey.ConsumerKey)
	fmt.Printf("consumer_secret: %s\n", result.apiKey.ConsumerSecret)
	fmt.Printf("passkey:         %s\n", result.apiKey.Passkey)
	return nil
}

type projectResult struct {
	project *data.Project
	apiKey  *data.APIKey
}

func (c *ProjectCommand) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List existing projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbConnectionPool, err := db.OpenDBConnectionPool(globalOptions.databaseURL)
			if err != nil {
				return fmt.Errorf("opening database connection pool: %w", err)
			}
			defer dbConnectionPool.Close()

			models, err := data.NewModels(dbConnectionPool)
			if err != nil {
				return fmt.Errorf("creating data models: %w", err)
			}

			projects, err := models.Projects.GetAll(ctx, dbConnectionPool)
			if err != nil {
				return fmt.Errorf("listing projects: %w", err)
			}

			for _, project := range projects {
				port := "-"
				if project.Port != nil {
					port = strconv.Itoa(*project.Port)
				}
				fmt.Printf("%d\t%s\t%s\tport=%s\n", project.ID, project.DisplayName, project.SimulationMode, port)
			}
			return nil
		},
	}
}
