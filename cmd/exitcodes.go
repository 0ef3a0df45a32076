// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"

	"github.com/forgotten-org/forgerun/internal/coerce"
	"github.com/forgotten-org/forgerun/internal/engine"
	"github.com/forgotten-org/forgerun/internal/pipeline"
)

// Process exit codes. A failed stage exits with the code of its child.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

func exitCode(err error) int {
	if err == nil || errors.Is(err, pipeline.ErrInterrupted) {
		return ExitSuccess
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return stageErr.ExitCode()
	}

	var (
		missing  *engine.MissingRequiredOptionError
		parseErr *engine.ArgumentParseError
		coerced  *coerce.DefaultCoercionError
	)
	switch {
	case errors.As(err, &missing), errors.As(err, &parseErr), errors.As(err, &coerced):
		return ExitUsage
	}
	return ExitFailure
}
