// import-dataset 将 JSON/YAML 数据集文件导入数据库
//
// 用法:
//
//	import-dataset [--config path] [--dry-run] [--timeout 2m] file...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/database"
	"github.com/ashwinyue/llm-governance/internal/logger"
	"github.com/ashwinyue/llm-governance/internal/repository"
	"github.com/ashwinyue/llm-governance/internal/service/dataset"
)

var (
	configPath string
	dryRun     bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "import-dataset [flags] file...",
	Short: "Import evaluation datasets from JSON or YAML files",
	Long: `import-dataset upserts each dataset by dataset_id and replaces its test cases.

Examples:
  # Validate files only
  import-dataset --dry-run datasets/*.yaml

  # Import with an explicit config file
  import-dataset --config configs/config.yaml datasets/qa.json
`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runImport,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to configuration file")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate files without writing to the database")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for the whole import")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.App)

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var repo repository.DatasetRepository
	if !dryRun {
		db, err := database.New(cfg, log)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		defer db.Close()
		repo = repository.NewDatasetRepository(db.DB)
	}

	return importFiles(ctx, dataset.NewService(repo, log), args, dryRun, cmd.OutOrStdout(), log)
}

// importFiles 逐个导入，单个文件失败不影响其余文件
func importFiles(ctx context.Context, svc *dataset.Service, paths []string, dryRun bool, out io.Writer, log zerolog.Logger) error {
	failed := 0
	for _, path := range paths {
		if err := importFile(ctx, svc, path, dryRun, out); err != nil {
			failed++
			var verr *dataset.ValidationError
			if errors.As(err, &verr) {
				for _, issue := range verr.Issues {
					log.Error().Str("file", path).Str("issue", issue).Msg("invalid dataset")
				}
				continue
			}
			log.Error().Err(err).Str("file", path).Msg("import failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", failed, len(paths))
	}
	return nil
}

func importFile(ctx context.Context, svc *dataset.Service, path string, dryRun bool, out io.Writer) error {
	doc, err := dataset.LoadDocument(path)
	if err != nil {
		return err
	}
	if dryRun {
		if err := svc.Validate(doc); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: ok (%s v%s, %d samples)\n", path, doc.DatasetID, doc.Version, len(doc.Samples))
		return nil
	}

	result, err := svc.ImportDataset(ctx, doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: imported %s (id %s, %d test cases)\n", path, result.Dataset.Name, result.Dataset.ID, result.TestCases)
	return nil
}
