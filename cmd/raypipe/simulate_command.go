package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gogpu/raypipe"
	"github.com/gogpu/raypipe/internal/config"
)

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	var frames int
	var interval time.Duration
	var strategy string
	var settle bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the configured scenario frame by frame",
		Long: "Replay the configured scenario on the configured backend. Every frame applies the\n" +
			"scripted changes, requests a pipeline for the active materials and prints the cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			run := *cfg
			if cmd.Flags().Changed("frames") {
				run.Simulate.Frames = frames
			}
			if cmd.Flags().Changed("interval") {
				run.Simulate.FrameIntervalMS = int(interval / time.Millisecond)
			}
			if cmd.Flags().Changed("strategy") {
				run.Pipeline.Strategy = strategy
			}
			if err := run.Validate(); err != nil {
				return err
			}
			return simulate(cmd.Context(), cmd.OutOrStdout(), &run, settle)
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "Number of frames to simulate")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between frames")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Build strategy: libraries or native")
	cmd.Flags().BoolVar(&settle, "settle", false, "Wait for every running build before each frame")
	return cmd
}

// simulate runs the scenario. With settle set, every frame keeps polling
// until no build is running, which makes the output deterministic.
func simulate(ctx context.Context, out io.Writer, cfg *config.Config, settle bool) error {
	s, err := openScene(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "Strategy %s, %d materials, ray types %v, %d workers\n",
		s.manager.Strategy(), len(cfg.Materials), cfg.Pipeline.RayTypes, s.pool.Workers())

	if settle {
		if err := s.waitLoads(ctx); err != nil {
			raypipe.Logger().Warn("shader load failed", "err", err)
		}
	}

	script := cfg.Script
	interval := cfg.Simulate.FrameInterval()
	for frame := range cfg.Simulate.Frames {
		for len(script) > 0 && script[0].Frame == frame {
			if err := s.applyStep(script[0]); err != nil {
				return err
			}
			script = script[1:]
		}
		if settle {
			if err := s.waitLoads(ctx); err != nil {
				raypipe.Logger().Warn("shader load failed", "err", err)
			}
		} else if err := s.checkLoads(); err != nil {
			raypipe.Logger().Warn("shader load failed", "frame", frame, "err", err)
		}
		reloaded := s.propagateReloads()

		view := s.manager.GetPipeline(s.store)
		if settle {
			if view, err = s.settle(ctx); err != nil {
				return err
			}
		}
		writeFrame(out, frame, view, reloaded, s.manager.Snapshot())

		if n := s.disposer.Advance(); n > 0 {
			fmt.Fprintf(out, "Destroyed %d retired pipeline objects\n", n)
		}
		if frame < cfg.Simulate.Frames-1 && interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	writeSummary(out, s)
	return nil
}

// settle polls the manager until no library or pipeline is building. A
// library finishing between two polls only schedules its link on the next
// GetPipeline, so the manager must be idle on two polls in a row.
func (s *scene) settle(ctx context.Context) (*raypipe.SpecializedPipeline, error) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	idle := 0
	for {
		view := s.manager.GetPipeline(s.store)
		if building(s.manager.Snapshot()) {
			idle = 0
		} else if idle++; idle == 2 {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func building(snap raypipe.Snapshot) bool {
	if snap.Base == raypipe.SlotBuilding {
		return true
	}
	for _, m := range snap.Materials {
		if m.Library == raypipe.SlotBuilding {
			return true
		}
	}
	for _, e := range snap.Entries {
		if e.State == raypipe.Pending {
			return true
		}
	}
	return false
}

func writeFrame(out io.Writer, frame int, view *raypipe.SpecializedPipeline, reloaded []raypipe.ShaderHandle, snap raypipe.Snapshot) {
	selected := "none"
	if view != nil {
		selected = fmt.Sprintf("%s, %d hit groups", view.Mask(), view.Pipeline().HitgroupCount())
		if view.IsFallback() {
			selected += ", fallback"
		}
	}
	fmt.Fprintf(out, "\nFrame %d: active %s, pipeline %s\n", frame, snap.ActiveMask, selected)
	if len(reloaded) > 0 {
		fmt.Fprintf(out, "Reloaded: %s\n", joinHandles(reloaded))
	}

	materials := make([]string, len(snap.Materials))
	for i, m := range snap.Materials {
		materials[i] = fmt.Sprintf("%s x%d (%s)", m.ID, m.Instances, m.Library)
	}
	fmt.Fprintf(out, "Base library %s; materials: %s\n", snap.Base, strings.Join(materials, ", "))

	if len(snap.Entries) == 0 {
		return
	}
	rows := make([][]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		mapping := make([]string, len(e.Mapping))
		for i, r := range e.Mapping {
			mapping[i] = fmt.Sprintf("%d@%d", r.Slot, r.Base)
		}
		errText := ""
		if e.Err != nil {
			errText = e.Err.Error()
		}
		rows = append(rows, []string{
			e.Mask.String(),
			e.State.String(),
			strings.Join(mapping, " "),
			shortID(e.BuildID),
			yesNo(snap.ActiveMask == e.Mask),
			errText,
		})
	}
	fmt.Fprintln(out, renderTable("",
		[]string{"Mask", "State", "Slot@Base", "Build", "Active", "Error"},
		rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
}

func writeSummary(out io.Writer, s *scene) {
	hits, misses := s.modules.Stats()
	fmt.Fprintf(out, "\nShaders: %d loaded, %s of SPIR-V\n",
		s.store.Len(), humanize.Bytes(uint64(s.store.Bytes()))) //nolint:gosec // size is non-negative
	fmt.Fprintf(out, "Shader modules: %d cached, %d hits, %d misses (%.0f%% hit rate)\n",
		s.modules.Size(), hits, misses, 100*s.modules.HitRate())
	fmt.Fprintf(out, "Builds: %s run on %d workers, %d panicked\n",
		humanize.Comma(s.pool.Completed()), s.pool.Workers(), s.pool.Panics())
	fmt.Fprintf(out, "Disposal: %d destroyed, %d pending after %d frames\n",
		s.disposer.Destroyed(), s.disposer.Pending(), s.disposer.Frame())
	if s.disk != nil {
		if size, err := s.disk.Size(context.Background()); err == nil {
			fmt.Fprintf(out, "Shader cache %s: %s\n", s.disk.Path(), humanize.Bytes(uint64(size))) //nolint:gosec // size is non-negative
		}
	}
}

func joinHandles(handles []raypipe.ShaderHandle) string {
	parts := make([]string, len(handles))
	for i, h := range handles {
		parts[i] = string(h)
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
