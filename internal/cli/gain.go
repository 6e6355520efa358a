// ABOUTME: gain command
// ABOUTME: Calculates ReplayGain for files and stores it in the library
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harperreed/wavedeck/internal/app"
	"github.com/harperreed/wavedeck/internal/gain"
	"github.com/harperreed/wavedeck/internal/library"
)

func newGainCommand(o *options) *cobra.Command {
	var single bool
	cmd := &cobra.Command{
		Use:   "gain [paths...]",
		Short: "Calculate track and album gain",
		Long:  "Measures loudness of the given files, grouped into albums, and stores track and album gain in the library.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, settings, err := o.load(cmd)
			if err != nil {
				return err
			}
			logger, closer, err := setupLogging(settings, false)
			if err != nil {
				return err
			}
			defer closer.Close()

			registry := o.decoders()
			files, err := app.Collect(registry, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := gain.Options{
				Registry:  registry,
				Reference: settings.Normalization.ReferenceLUFS,
				Logger:    logger,
			}
			var lib *library.Library
			if !single {
				if settings.Library.Path == "" {
					return errors.New("gain needs library.path to store results")
				}
				lib, err = library.Open(settings.Library.Path, logger)
				if err != nil {
					return err
				}
				defer lib.Close()
				opts.Library = lib
			}
			calc := gain.New(opts)

			out := cmd.OutOrStdout()
			if single {
				return calculateSingle(ctx, calc, files, out)
			}

			var mu sync.Mutex
			count := 0
			calc.OnResult(func(r gain.Result) {
				mu.Lock()
				defer mu.Unlock()
				count++
				printResult(out, r)
			})
			calc.Start()
			defer calc.Close()

			calc.Enqueue(app.BuildItems(ctx, files, lib)...)
			if err := calc.Wait(ctx); err != nil {
				return fmt.Errorf("gain calculation interrupted: %w", err)
			}

			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "%d of %d files measured\n", count, len(files))
			return nil
		},
	}
	cmd.Flags().BoolVar(&single, "single", false, "Measure each file on its own without album grouping or storing")
	return cmd
}

func calculateSingle(ctx context.Context, calc *gain.Calculator, files []string, out io.Writer) error {
	for _, f := range files {
		res, ok := calc.CalculateFile(ctx, f)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(out, "%s: not measurable\n", f)
			continue
		}
		printResult(out, res)
	}
	return nil
}

func printResult(out io.Writer, r gain.Result) {
	line := fmt.Sprintf("%s: track %+.2f dB peak %.4f", r.Filename, r.TrackGain, r.TrackPeak)
	if r.HasAlbum {
		line += fmt.Sprintf(", album %+.2f dB peak %.4f", r.AlbumGain, r.AlbumPeak)
	}
	fmt.Fprintln(out, line)
}
