package stage

import (
	"medwarehouse/internal/lake"
	"medwarehouse/internal/services"
)

// RequirePartition validates the partition an input carries.
// On failure it returns a services.ErrValidation suitable for Prepare methods.
func RequirePartition(stageName string, in Input) error {
	if _, err := lake.ParsePartition(in.Partition); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "partition",
			"Partition missing or malformed; pass --partition YYYY-MM-DD", err)
	}
	return nil
}

// Skipped is the placeholder result for a stage that never ran.
func Skipped(name string) Result {
	return Result{Stage: name, Status: StatusSkipped}
}
