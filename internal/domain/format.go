package domain

import (
	"fmt"
	"strings"
)

// A failure always carries a non-empty error.
func FormatResult(res *RunResult, err error) OCRResponse {
	if err != nil {
		return Failure(err.Error())
	}
	if res == nil {
		return Failure("recognizer produced no result")
	}
	if res.ExitCode == 0 {
		return Success(res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) == "" {
		return Failure(fmt.Sprintf("exit status %d", res.ExitCode))
	}
	return Failure(res.Stderr)
}
