package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	return qualityCmd("test", "Run unit tests", test.Test)
}

func LintCmd() *cobra.Command {
	return qualityCmd("lint", "Run linters", test.Lint)
}

func IntegrationTestCmd() *cobra.Command {
	return qualityCmd("integration-test", "Run integration tests against attached hardware", test.Integ)
}

func qualityCmd(use, short string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			return nil
		},
	}
}
