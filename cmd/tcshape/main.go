package main

import (
	"os"

	"github.com/ethpandaops/tcshape/internal/cmd"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("Failed to execute command")
		os.Exit(1)
	}
}
