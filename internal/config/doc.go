// Package config loads the TOML scenario that drives the raypipe CLI.
//
// A configuration describes one pipeline family (layout, stages, materials
// and ray types), the infrastructure it runs on (worker pool, disposal
// queue, shader store and disk cache), logging, and a scripted sequence of
// material and shader changes that `raypipe simulate` replays frame by
// frame. Load applies defaults, normalizes values, and validates the result
// before returning it.
package config
