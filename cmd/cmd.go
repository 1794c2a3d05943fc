// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/ollama/aegan/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "aegan",
		Short:         "Learned image compression core: rate, context model and MS-SSIM tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	msssimCmd := newMSSSIMCmd()
	analyzeCmd := newAnalyzeCmd()
	evalCmd := newEvalCmd()
	trainCmd := newTrainCmd()
	summariesCmd := newSummariesCmd()

	envVars := envconfig.AsMap()
	model := []envconfig.EnvVar{
		envVars["AEGAN_CHANNELS"],
		envVars["AEGAN_CENTROIDS"],
		envVars["AEGAN_RATE_TARGET"],
		envVars["AEGAN_RATE_BETA"],
		envVars["AEGAN_UNMASKED_RATE"],
		envVars["AEGAN_SEED"],
		envVars["AEGAN_NUM_PARALLEL"],
	}

	for _, cmd := range []*cobra.Command{serveCmd, msssimCmd, analyzeCmd, evalCmd, trainCmd, summariesCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["AEGAN_DEBUG"],
				envVars["AEGAN_HOST"],
				envVars["AEGAN_ORIGINS"],
				envVars["AEGAN_SUMMARY_DB"],
				envVars["AEGAN_IMAGE_SIZE"],
			}, model...))
		case analyzeCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{envVars["AEGAN_DEBUG"], envVars["AEGAN_IMAGE_SIZE"]}, model...))
		case evalCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["AEGAN_DEBUG"],
				envVars["AEGAN_SUMMARY_DB"],
				envVars["AEGAN_IMAGE_SIZE"],
				envVars["AEGAN_BATCH_SIZE"],
			}, model...))
		case trainCmd:
			appendEnvDocs(cmd, append([]envconfig.EnvVar{
				envVars["AEGAN_DEBUG"],
				envVars["AEGAN_SUMMARY_DB"],
				envVars["AEGAN_IMAGE_SIZE"],
				envVars["AEGAN_BATCH_SIZE"],
				envVars["AEGAN_LR_D"],
				envVars["AEGAN_LR_G"],
				envVars["AEGAN_EPOCHS_D"],
				envVars["AEGAN_EPOCHS_GAN"],
			}, model...))
		case summariesCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["AEGAN_SUMMARY_DB"], envVars["AEGAN_HOST"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["AEGAN_DEBUG"], envVars["AEGAN_HOST"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		msssimCmd,
		analyzeCmd,
		evalCmd,
		trainCmd,
		summariesCmd,
	)

	return rootCmd
}
