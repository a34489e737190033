package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"postergen/internal/domain"
	"postergen/internal/imagenorm"
)

func newNormalizeCommand(ctx *commandContext) *cobra.Command {
	var (
		in      string
		out     string
		maxSide int
		quality int
	)
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Resize and re-encode a photo offline the way uploads are prepared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readImage(in)
			if err != nil {
				return err
			}
			n := imagenorm.New(imagenorm.Options{MaxSide: maxSide, Quality: quality, Logger: ctx.logger()})
			asset, err := n.Normalize(cmd.Context(), raw)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, asset.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d -> %dx%d (%d bytes, quality %d)\n",
				out, asset.SourceWidth, asset.SourceHeight, asset.Width, asset.Height, len(asset.Data), asset.Quality)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Source photo")
	cmd.Flags().StringVar(&out, "out", "", "Destination JPEG")
	cmd.Flags().IntVar(&maxSide, "max-side", imagenorm.DefaultMaxSide, "Longest side in pixels")
	cmd.Flags().IntVar(&quality, "quality", imagenorm.DefaultQuality, "JPEG quality (1-100)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func readImage(path string) (domain.RawImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RawImage{}, fmt.Errorf("read %s: %w", path, err)
	}
	raw := domain.NewRawImage(filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), data)
	if err := raw.Validate(); err != nil {
		return domain.RawImage{}, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}
