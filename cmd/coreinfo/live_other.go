//go:build !linux

package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/weltkante/clrmd/target"
)

func openLive(pid int, logger *zap.Logger) (target.DataReader, error) {
	return nil, errors.New("live process inspection requires linux")
}
