package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/campuswatch/campuswatch/internal/app"
	"github.com/campuswatch/campuswatch/internal/config"
)

// program adapts the daemon to the kardianos/service lifecycle.
type program struct {
	cfgPath string
	cancel  context.CancelFunc
	done    chan struct{}
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		cfg, err := config.Load(p.cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if err := app.New(cfg, newLogger(cfg), version).Run(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

func serviceCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "service [install|uninstall|run]",
		Short: "Run or manage campuswatch as a system service",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if cfgPath == "" {
				resolved, err := resolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}

			svc, err := service.New(&program{cfgPath: cfgPath}, &service.Config{
				Name:        "campuswatch",
				DisplayName: "campuswatch",
				Description: "Telegram bot watching school-intranet presence and events",
				Arguments:   []string{"service", "run", "--config", cfgPath},
			})
			if err != nil {
				return err
			}

			switch args[0] {
			case "install":
				return svc.Install()
			case "uninstall":
				return svc.Uninstall()
			case "run":
				return svc.Run()
			default:
				return fmt.Errorf("unknown service action %q", args[0])
			}
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")
	return cmd
}
