// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/observability"
)

type runFlags struct {
	productCount int
	multiProduct bool
	draft        bool
	hashtags     []string
	theme        string
	paid         bool
	price        int
}

func (f runFlags) options(cmd *cobra.Command) schemas.TaskOptions {
	opts := schemas.TaskOptions{
		ProductCount: f.productCount,
		MultiProduct: f.multiProduct,
		Hashtags:     f.hashtags,
		IsPaid:       f.paid,
		Price:        f.price,
		Theme:        f.theme,
	}
	if cmd.Flags().Changed("draft") {
		publishNow := !f.draft
		opts.PublishNow = &publishNow
	}
	return opts
}

func newRunCmd(a *app) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task and print its result as JSON",
		Long: `Run one task immediately:

  daily-post      check the daily limit, pick a product, write and publish an article
  generate-only   write an article for the top product without publishing
  health-check    probe the catalog, the LLM and the note login`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(schemas.TaskDailyPost), string(schemas.TaskGenerateOnly), string(schemas.TaskHealthCheck)},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := schemas.TaskRequest{Task: schemas.TaskType(args[0]), Options: flags.options(cmd)}
			return runTask(cmd.Context(), a, req, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&flags.productCount, "product-count", 0, "products to fetch (default content.max_products_per_post)")
	cmd.Flags().BoolVar(&flags.multiProduct, "multi-product", false, "write one article covering every fetched product")
	cmd.Flags().BoolVar(&flags.draft, "draft", false, "save as draft instead of publishing")
	cmd.Flags().StringSliceVar(&flags.hashtags, "hashtags", nil, "hashtags (default content.default_hashtags)")
	cmd.Flags().StringVar(&flags.theme, "theme", "", "article theme")
	cmd.Flags().BoolVar(&flags.paid, "paid", false, "publish as a paid article")
	cmd.Flags().IntVar(&flags.price, "price", 0, "price in yen for paid articles")
	return cmd
}

func runTask(ctx context.Context, a *app, req schemas.TaskRequest, out io.Writer) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	components, err := componentFactory.Create(ctx, a.cfg, observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	result, err := components.Executor.Execute(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
