// Command ironlog levanta la API de identidad y trae las herramientas de
// operación (claves, migraciones, revocación administrativa).
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/ironlog/internal/config"
	"github.com/dropDatabas3/ironlog/internal/observability/logger"
)

var version = "dev"

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	var rf rootFlags

	root := &cobra.Command{
		Use:           "ironlog",
		Short:         "Identidad, tokens y ownership de ironlog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if rf.envFile != "" {
				_ = godotenv.Load(rf.envFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&rf.configPath, "config", envOr("CONFIG_PATH", ""), "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&rf.envFile, "env-file", ".env", "ruta a .env (si existe, se carga)")

	root.AddCommand(newServeCmd(&rf))
	root.AddCommand(newKeysCmd())
	root.AddCommand(newMigrateCmd(&rf))
	root.AddCommand(newAdminCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadConfig carga la config e inicializa el logger con ella.
func loadConfig(rf *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(rf.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "ironlog",
		Version:     version,
	})
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
