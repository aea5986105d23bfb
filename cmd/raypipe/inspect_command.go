package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/raypipe"
	"github.com/gogpu/raypipe/internal/config"
)

// labelLayout stands in for a device layout when only the material table
// is needed.
type labelLayout string

func (l labelLayout) Label() string { return string(l) }

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the pipeline characteristics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			chars, err := characteristics(cfg, labelLayout(cfg.Pipeline.Label))
			if err != nil {
				return err
			}
			writeCharacteristics(cmd.OutOrStdout(), cfg, ctx.source, chars)
			return nil
		},
	}
}

func writeCharacteristics(out io.Writer, cfg *config.Config, source string, chars *raypipe.Characteristics) {
	info := chars.CreateInfo()
	fmt.Fprintf(out, "Config: %s\n", source)
	fmt.Fprintf(out, "Pipeline %q: strategy %s, %d ray types (tracing %v), recursion depth %d\n",
		chars.Layout().Label(), cfg.Pipeline.Strategy, chars.RayTypeCount(), cfg.Pipeline.RayTypes, info.MaxRecursionDepth)
	fmt.Fprintf(out, "Ray generation %s; miss %s; callable %s\n",
		cfg.Shaders.RayGen, listOrDash(cfg.Shaders.Miss), listOrDash(cfg.Shaders.Callable))
	fmt.Fprintf(out, "Full mask %s\n", chars.FullMask())

	headers := []string{"Slot", "Material", "Type"}
	for rt := range chars.RayTypeCount() {
		headers = append(headers, fmt.Sprintf("Ray type %d", rt))
	}
	rows := make([][]string, 0, chars.MaterialCount())
	for slot := range chars.MaterialCount() {
		m := chars.Material(slot)
		row := []string{fmt.Sprint(slot), string(m.ID), m.Type.String()}
		for rt := range chars.RayTypeCount() {
			row = append(row, describeHitgroup(m.Hitgroup(uint32(rt)))) //nolint:gosec // bounded by ray type count
		}
		rows = append(rows, row)
	}
	aligns := []columnAlignment{alignRight}
	fmt.Fprintln(out, renderTable("Materials", headers, rows, aligns))
}

func describeHitgroup(h raypipe.Hitgroup) string {
	if h.IsEmpty() {
		return "-"
	}
	var parts []string
	if h.ClosestHit != nil {
		parts = append(parts, "chit "+string(h.ClosestHit.Shader))
	}
	if h.AnyHit != nil {
		parts = append(parts, "ahit "+string(h.AnyHit.Shader))
	}
	if h.Intersection != nil {
		parts = append(parts, "isect "+string(h.Intersection.Shader))
	}
	return strings.Join(parts, ", ")
}

func listOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
