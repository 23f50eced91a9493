package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitalimmortality/backend/internal/app"
	"github.com/digitalimmortality/backend/internal/config"
	"github.com/digitalimmortality/backend/internal/platform/firebase"
	chatsvc "github.com/digitalimmortality/backend/internal/service/chat"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

func openAPICmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(app.Options{
				Version:  Version,
				Personas: personasvc.DefaultCatalog(),
				Chat:     chatsvc.NewMock(),
			})
			defer func() { _ = a.Close() }()

			var (
				out []byte
				err error
			)
			switch strings.ToLower(format) {
			case "yaml", "yml":
				out, err = a.API.OpenAPI().YAML()
			case "json":
				out, err = json.MarshalIndent(a.API.OpenAPI(), "", "  ")
				out = append(out, '\n')
			default:
				return fmt.Errorf("unsupported format %q (want yaml or json)", format)
			}
			if err != nil {
				return fmt.Errorf("render openapi: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func personasCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "Manage the persona catalog",
	}
	cmd.AddCommand(validatePersonasCmd(), importPersonasCmd(envFile))
	return cmd
}

func validatePersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a persona catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := personasvc.LoadCatalogFile(args[0])
			if err != nil {
				return err
			}
			for _, p := range catalog.Personas() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.ID, p.Name)
			}
			return nil
		},
	}
}

func importPersonasCmd(envFile *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Write a persona catalog to Firestore",
		Long:  "Write a persona catalog to the Firestore personas collection. Without --file the built-in catalog is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := personasvc.DefaultCatalog()
			if file != "" {
				var err error
				if catalog, err = personasvc.LoadCatalogFile(file); err != nil {
					return err
				}
			}

			cfg, err := config.Load(*envFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx := cmd.Context()
			clients, err := firebase.NewClients(ctx, firebase.Config{
				ProjectID:       cfg.Firebase.ProjectID,
				CredentialsFile: cfg.Firebase.CredentialsFile,
			})
			if err != nil {
				return err
			}
			defer func() { _ = clients.Close() }()

			if err := personasvc.NewFirestoreStore(clients.Firestore).Import(ctx, catalog); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d personas into %s\n", len(catalog.Personas()), cfg.Firebase.ProjectID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "persona catalog YAML file")
	return cmd
}
