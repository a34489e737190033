package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"postergen/internal/domain"
	"postergen/internal/imagenorm"
	"postergen/internal/pipeline"
	"postergen/internal/providers/dify"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		imagePath   string
		character   string
		waitTimeout time.Duration
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one poster generation and print the poster URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			char, err := domain.ParseCharacter(character)
			if err != nil {
				return err
			}
			raw, err := readImage(imagePath)
			if err != nil {
				return err
			}
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			logger := ctx.logger()

			client, err := dify.NewClient(dify.Options{
				APIKey:        cfg.DifyAPIKey,
				BaseURL:       cfg.DifyBaseURL,
				User:          cfg.DifyUser,
				CategoryField: cfg.DifyCategoryField,
				ImageField:    cfg.DifyImageField,
				OutputField:   cfg.DifyOutputField,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			p := pipeline.New(pipeline.Options{
				Normalizer: imagenorm.New(imagenorm.Options{
					MaxSide: cfg.ImageMaxSide,
					Quality: cfg.ImageJPEGQuality,
					Logger:  logger,
				}),
				Uploader:         client,
				Runner:           client,
				NormalizeTimeout: cfg.NormalizeTimeout,
				UploadTimeout:    cfg.UploadTimeout,
				GenerateTimeout:  cfg.GenerateTimeout,
				Logger:           logger,
			})
			defer p.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if waitTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, waitTimeout)
				defer cancel()
			}

			updates, unsubscribe := p.Subscribe()
			progressDone := make(chan struct{})
			go func() {
				defer close(progressDone)
				reportProgress(cmd, updates)
			}()
			defer func() {
				unsubscribe()
				<-progressDone
			}()

			res, err := p.Run(runCtx, raw, char)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("generation did not finish within %s", waitTimeout)
				}
				return err
			}
			if asJSON {
				return writeJSON(cmd, res)
			}
			if !res.OK() {
				return errors.New(res.Failure.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Success.PosterURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "Portrait photo")
	cmd.Flags().StringVar(&character, "character", string(domain.DefaultCharacter), "Character key or name")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 0, "Give up after this long (0 waits for the stage timeouts)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// reportProgress prints each state change to stderr until updates closes.
func reportProgress(cmd *cobra.Command, updates <-chan pipeline.Snapshot) {
	var last domain.State
	for snap := range updates {
		if snap.State == last || snap.State == domain.StateIdle {
			continue
		}
		last = snap.State
		fmt.Fprintf(cmd.ErrOrStderr(), "%s...\n", snap.State)
	}
}
