// File: cmd/validate_env.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autonote/internal/config"
)

func newValidateEnvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-env",
		Short: "Check that every required setting is present and well formed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateEnv(a.cfg, cmd.OutOrStdout())
		},
	}
}

func validateEnv(cfg *config.Config, out io.Writer) error {
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  catalog.access_key:    %s\n", config.Mask(cfg.Catalog.AccessKey))
	fmt.Fprintf(out, "  catalog.secret_key:    %s\n", config.Mask(cfg.Catalog.SecretKey))
	fmt.Fprintf(out, "  catalog.associate_tag: %s\n", cfg.Catalog.AssociateTag)
	fmt.Fprintf(out, "  llm.provider:          %s\n", cfg.LLM.Provider)
	fmt.Fprintf(out, "  llm.model:             %s\n", cfg.LLM.Model)
	fmt.Fprintf(out, "  llm.api_key:           %s\n", config.Mask(cfg.LLM.APIKey))
	fmt.Fprintf(out, "  note.email:            %s\n", cfg.Note.Email)
	fmt.Fprintf(out, "  note.password:         %s\n", config.Mask(cfg.Note.Password))
	fmt.Fprintf(out, "  app.env:               %s\n", cfg.App.Env)
	fmt.Fprintf(out, "  server.port:           %d\n", cfg.Server.Port)
	if cfg.Database.URL != "" {
		fmt.Fprintln(out, "  database.url:          set")
	} else {
		fmt.Fprintln(out, "  database.url:          not set (run history disabled)")
	}

	issues := cfg.Check()
	if len(issues) == 0 {
		fmt.Fprintln(out, "\nAll required settings are valid.")
		return nil
	}

	fmt.Fprintf(out, "\nFound %d issue(s):\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
	return fmt.Errorf("configuration has %d issue(s)", len(issues))
}
