// Package render provides the command that previews a key image.
package render

import (
	"fmt"
	"os"

	"github.com/andrei-cloud/keydeck/internal/config"
	keyrender "github.com/andrei-cloud/keydeck/internal/render"
	"github.com/spf13/cobra"
)

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render LABEL",
		Short: "Render a key image to a file",
		Long:  `Draw LABEL the way it appears on a key and write the encoded image to a file.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runRender,
	}

	cmd.Flags().StringP("output", "o", "", "output file (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out, _ := cmd.Flags().GetString("output")

	format, err := keyrender.ParseFormat(cfg.Device.ImageFormat)
	if err != nil {
		return err
	}

	r, err := keyrender.New(nil, keyrender.WithSize(cfg.Device.KeySize), keyrender.WithFormat(format))
	if err != nil {
		return err
	}

	img, err := r.Bitmap(args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, img, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	cmd.Printf("Wrote %dx%d %s image to %s\n", r.Size(), r.Size(), r.Format(), out)

	return nil
}
