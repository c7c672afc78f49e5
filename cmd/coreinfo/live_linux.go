//go:build linux

package main

import (
	"go.uber.org/zap"

	"github.com/weltkante/clrmd/liveproc"
	"github.com/weltkante/clrmd/target"
)

func openLive(pid int, logger *zap.Logger) (target.DataReader, error) {
	return liveproc.Open(pid, liveproc.WithLogger(logger))
}
