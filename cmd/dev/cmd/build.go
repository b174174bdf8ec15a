package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/gophertribe/devtool/build"
	"github.com/spf13/cobra"
)

const (
	binaryPath  = "dist/flash"
	mainPackage = "./cmd/flash"
	buildImage  = "gophertribe/gobuild:1.25-bookworm"
)

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the flash cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			targetOS, _ := cmd.Flags().GetString("os")
			targetArch, _ := cmd.Flags().GetString("arch")
			version, _ := cmd.Flags().GetString("version")
			crossOS, _ := cmd.Flags().GetString("cross-os")
			crossArch, _ := cmd.Flags().GetString("cross-arch")

			// native builds run go build directly, anything else goes through docker
			if targetOS == runtime.GOOS && targetArch == runtime.GOARCH {
				if crossOS != "" && crossArch != "" {
					targetOS = crossOS
					targetArch = crossArch
				}
				slog.Info("building", "os", targetOS, "arch", targetArch, "version", version)
				// hid needs cgo
				return build.GoBuild(binaryPath, mainPackage, build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					EnableCgo:     true,
					Arch:          targetArch,
					OS:            targetOS,
				})
			}

			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", targetOS, targetArch),
				[]string{"build", "--version", version, "--cross-os", crossOS, "--cross-arch", crossArch},
				build.DockerBuildOpts{
					NoCache: noCache,
					Image:   buildImage,
				})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")

	return cmd
}
