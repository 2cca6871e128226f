package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/replan/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "replan",
	Short: "Decide when an autonomous coding task should be replanned",
	Long: `Replan monitors the execution of autonomous coding tasks and decides
when a task should continue, be split into subtasks, be rescoped, or be
escalated to a human.

Scenarios are YAML files describing a task, its execution context, and a
sequence of iteration outcomes. Use evaluate, split, simulate, or watch to
run them through the decision engine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports any error on stderr
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/replan/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	bindFlags()
}

// bindFlags binds global flags to their viper keys.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	configureEnv(viper.GetViper())

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// configureEnv enables REPLAN_ environment overrides on v.
func configureEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("REPLAN")
	// Replace dots with underscores for nested keys in env vars
	// e.g., REPLAN_REPLAN_HISTORY_LIMIT for replan.history.limit
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}
