package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/campuswatch/campuswatch/internal/config"
)

// configInitCmd interactively writes a starter configuration file.
func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Interactively create a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "campuswatch.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}

			var (
				token     string
				uid       string
				secret    string
				backend   = "memory"
				redisAddr string
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Telegram bot token").
						Description("From @BotFather").
						Value(&token),
					huh.NewInput().
						Title("Intra application UID").
						Value(&uid),
					huh.NewInput().
						Title("Intra application secret").
						EchoMode(huh.EchoModePassword).
						Value(&secret),
				),
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("Cache backend").
						Options(
							huh.NewOption("In-process memory", "memory"),
							huh.NewOption("Redis", "redis"),
						).
						Value(&backend),
					huh.NewInput().
						Title("Redis address (host:port)").
						Placeholder("localhost:6379").
						Value(&redisAddr),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			cfg := config.Config{}
			cfg.Telegram.Token = token
			cfg.Intra.Applications = []config.Application{{UID: uid, Secret: secret}}
			cfg.Cache.Backend = backend
			if backend == "redis" {
				cfg.Cache.Redis.Addr = redisAddr
			}
			cfg.Defaults()

			out, err := yaml.Marshal(&cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			if err := os.WriteFile(path, out, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}

			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}
