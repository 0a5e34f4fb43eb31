package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/mcpexec/pkg/app"
)

// gatewayProgram runs the serve surface under the system service manager.
type gatewayProgram struct {
	cmd    *cobra.Command
	cancel context.CancelFunc
	done   chan error
}

var _ service.Interface = (*gatewayProgram)(nil)

func (p *gatewayProgram) Start(service.Service) error {
	a, err := buildApp(p.cmd, app.Options{})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		defer func() { _ = a.Close() }()
		p.done <- a.Serve(ctx, app.ServeOptions{HTTP: true})
	}()
	return nil
}

func (p *gatewayProgram) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|run>",
		Short:     "Manage mcpexec serve as a system service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: append(append([]string{}, service.ControlAction[:]...), "run"),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcArgs := []string{"service", "run"}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				svcArgs = append(svcArgs, "--config", abs)
			}
			svc, err := service.New(&gatewayProgram{cmd: cmd}, &service.Config{
				Name:        "mcpexec",
				DisplayName: "mcpexec gateway",
				Description: "Runs natural-language intents as sandboxed tool programs over HTTP.",
				Arguments:   svcArgs,
			})
			if err != nil {
				return err
			}

			if args[0] == "run" {
				return svc.Run()
			}
			if err := service.Control(svc, args[0]); err != nil {
				return fmt.Errorf("service %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", args[0])
			return nil
		},
	}
	return cmd
}
