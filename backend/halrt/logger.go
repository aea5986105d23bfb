// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/raypipe"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	raypipe.OnLoggerChange(func(l *slog.Logger) { logger.Store(l) })
}

