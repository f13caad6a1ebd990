package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli"
	"github.com/valerio/go-tempo/tempo"
	"github.com/valerio/go-tempo/tempo/debug"
	"github.com/valerio/go-tempo/tempo/events"
	"github.com/valerio/go-tempo/tempo/profile"
	"github.com/valerio/go-tempo/tempo/timing"
)

// dmaLength is how long, in master cycles, the synthetic DMA holds the bus.
const dmaLength = 2048

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("Error running tempo", "error", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "tempo"
	app.Description = "Runs a synthetic workload on a multi-clock timing core"
	app.Usage = "tempo [options]"
	app.Version = "1.0.0"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "profile",
			Usage: "Built-in profile name or path to a YAML profile",
			Value: profile.DefaultName,
		},
		cli.Uint64Flag{
			Name:  "cycles",
			Usage: "Number of master cycles to run (0 = use --frames)",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run when --cycles is not set",
			Value: 60,
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log every dispatched event",
		},
		cli.BoolFlag{
			Name:  "trace",
			Usage: "Print a snapshot of the system after every frame",
		},
		cli.BoolFlag{
			Name:  "realtime",
			Usage: "Pace frames against the wall clock",
		},
		cli.BoolFlag{
			Name:  "monitor",
			Usage: "Show a live terminal monitor instead of running headless",
		},
		cli.StringFlag{
			Name:  "load",
			Usage: "Resume from a save state file",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "Write a save state file when the run ends",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "profiles",
			Usage: "List the built-in profiles",
			Action: func(c *cli.Context) error {
				fmt.Fprintln(out, strings.Join(profile.Names(), "\n"))
				return nil
			},
		},
		{
			Name:      "dump-profile",
			Usage:     "Print a profile as YAML",
			ArgsUsage: "[name or path]",
			Action: func(c *cli.Context) error {
				p, err := loadProfile(c.Args().First())
				if err != nil {
					return err
				}
				data, err := p.Marshal()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			},
		},
	}
	app.Action = func(c *cli.Context) error {
		return run(c, out)
	}
	return app
}

// loadProfile resolves a built-in name or a file path.
func loadProfile(nameOrPath string) (profile.Profile, error) {
	if nameOrPath == "" {
		return profile.Default(), nil
	}
	for _, name := range profile.Names() {
		if name == nameOrPath {
			return profile.Builtin(name)
		}
	}
	return profile.Load(nameOrPath)
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func run(c *cli.Context, out io.Writer) error {
	setupLogging(c.Bool("verbose"))

	p, err := loadProfile(c.String("profile"))
	if err != nil {
		return err
	}

	sys := tempo.New(p.Config(),
		tempo.WithROM(patternROM{}),
		tempo.WithHandler(events.DMA, holdBusOnDMA(dmaLength)),
	)
	cpu := newWorkload(sys)
	sys.SetCPU(cpu)
	chips := attachChips(sys)

	if path := c.String("load"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading save state: %w", err)
		}
		if err := sys.Load(data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		cpu.resume(sys)
		slog.Info("Resumed from save state", "file", path, "cycle", sys.Cycles())
	} else {
		cpu.setup(sys)
	}

	frameCycles := p.Config().LCD.FrameCycles()
	frame := timing.FrameDuration(p.MasterHz, frameCycles)

	if c.Bool("monitor") {
		m, err := newMonitor(sys, frameCycles, frame)
		if err != nil {
			return err
		}
		if err := m.Run(); err != nil {
			return err
		}
	} else {
		target := c.Uint64("cycles")
		if target == 0 {
			frames := c.Int("frames")
			if frames <= 0 {
				return errors.New("need a positive --frames or --cycles")
			}
			target = uint64(frames) * frameCycles
		}
		target += sys.Cycles()

		limiter := timing.NewNoOpLimiter()
		if c.Bool("realtime") {
			limiter = timing.NewAdaptiveLimiter(frame)
		}

		slog.Info("Running", "profile", p.Name, "from", sys.Cycles(), "to", target)
		for sys.Cycles() < target {
			sys.RunUntil(min(sys.Cycles()+frameCycles, target))
			if c.Bool("trace") {
				fmt.Fprintf(out, "%s\n\n", debug.Take(sys))
			}
			limiter.WaitForNextFrame()
		}
	}

	attrs := []any{"cycles", sys.Cycles(), "frames", sys.LCD().Frames(), "instructions", cpu.steps, "interrupts", cpu.serviced}
	for _, ch := range chips {
		attrs = append(attrs, ch.name, ch.ticks)
	}
	slog.Info("Run finished", attrs...)
	fmt.Fprintln(out, debug.Take(sys))

	if path := c.String("save"); path != "" {
		data, err := sys.Save()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing save state: %w", err)
		}
		slog.Info("Saved state", "file", path, "bytes", len(data))
	}
	return nil
}
