package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRenderCommand creates the "render" subcommand that prints the manifest
// a deploy would submit.
func newRenderCommand() *cobra.Command {
	var userID, moduleID, imageFile string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the Kubernetes manifest for a user and module",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ConfigFromContext(cmd.Context())
			if imageFile != "" {
				cfg.Images.File = imageFile
			}

			builder, _, err := newBuilder(cfg)
			if err != nil {
				return err
			}

			m, err := builder.Build(userID, moduleID)
			if err != nil {
				return err
			}

			doc, err := m.YAML()
			if err != nil {
				return err
			}

			LoggerFromContext(cmd.Context()).Debug("rendered manifest", "stack", m.StackName, "objects", len(m.Objects()))
			fmt.Fprintf(cmd.OutOrStdout(), "# stack: %s\n", m.StackName)
			_, err = cmd.OutOrStdout().Write(doc)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&moduleID, "module", "", "Simulation module ID")
	cmd.Flags().StringVar(&imageFile, "images", os.Getenv("IMAGE_MAP_FILE"), "Path to the module image map (defaults to IMAGE_MAP_FILE)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("module")

	return cmd
}
