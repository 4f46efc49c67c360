package main

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hiitsgabe/rompatch/pkg/patch"
)

func patchCmd() *cli.Command {
	var (
		source      string
		outDir      string
		parallel    int64
		keepInvalid bool
	)

	return &cli.Command{
		Name:      "patch",
		Usage:     "Apply roster files to a source image, one output per roster",
		ArgsUsage: "<roster.json> [roster.json ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "source",
				Aliases:     []string{"s"},
				Usage:       "source image (plain, .zst or .gz)",
				Destination: &source,
				Required:    true,
			},
			&cli.StringFlag{Name: "out-dir", Aliases: []string{"o"}, Usage: "output directory", Value: ".", Destination: &outDir},
			&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Usage: "parallel jobs", Value: int64(runtime.NumCPU()), Destination: &parallel},
			&cli.BoolFlag{Name: "keep-invalid", Usage: "keep a failed output with an .invalid marker", Destination: &keepInvalid},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rosters := cmd.Args().Slice()
			if len(rosters) == 0 {
				return cli.Exit("error: no roster files", 1)
			}
			log := logger()

			jobs := make([]*patch.Job, 0, len(rosters))
			for _, roster := range rosters {
				target, err := loadTarget(roster)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				output := outputName(outDir, roster, source)
				name := filepath.Base(roster)
				opts := []patch.Option{patch.WithProgress(func(completed, total int, label string) {
					log.Debug("step done", "roster", name, "step", label, "progress", fmt.Sprintf("%d/%d", completed, total))
				})}
				if keepInvalid {
					opts = append(opts, patch.WithKeepInvalid())
				}
				job, err := patch.NewJob(source, output, target, opts...)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", roster, err), 1)
				}
				log.Info("queued", "roster", name, "platform", target.Name(), "output", output)
				jobs = append(jobs, job)
			}

			if err := patch.RunAll(ctx, jobs, int(parallel)); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("all jobs done", "count", len(jobs))
			return nil
		},
	}
}

// outputName derives the output path from the roster file's stem and
// the source image's extension, with any compression suffix stripped:
// patching game.iso.zst with arsenal.json lands at out/arsenal.iso.
func outputName(outDir, roster, source string) string {
	stem := strings.TrimSuffix(filepath.Base(roster), filepath.Ext(roster))
	img := source
	switch strings.ToLower(filepath.Ext(img)) {
	case ".zst", ".gz":
		img = strings.TrimSuffix(img, filepath.Ext(img))
	}
	ext := filepath.Ext(img)
	if ext == "" {
		ext = ".bin"
	}
	return filepath.Join(outDir, stem+ext)
}
