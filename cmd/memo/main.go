// Package main is the entry point for memo.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/cmd/memo/commands"
	"go.trai.ch/memo/internal/adapters/config"
	"go.trai.ch/memo/internal/adapters/logger"
	"go.trai.ch/memo/internal/app"
	"go.trai.ch/memo/internal/core/domain"
	_ "go.trai.ch/memo/internal/wiring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// 0. Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Interface - CLI; components are built once flags are known
	cli := commands.New(loadComponents)
	cli.SetArgs(args)

	// 2. Execution
	err := cli.Execute(ctx)
	if closeErr := cli.Close(context.WithoutCancel(ctx)); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err == nil {
		return 0
	}

	// Failed tasks were already reported as they finished.
	if errors.Is(err, domain.ErrBuildExecutionFailed) {
		return 1
	}

	if components := cli.Components(); components != nil {
		components.Logger.Error(err)
	} else {
		// Logger is not available if initialization failed
		logger.New().Error(err)
	}
	return 1
}

func loadComponents(ctx context.Context, overrides map[string]any) (*app.Components, error) {
	components, _, err := graft.ExecuteFor[*app.Components](
		config.WithOverrides(ctx, overrides),
		graft.DisableCache(),
	)
	return components, err
}
