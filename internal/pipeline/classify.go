package pipeline

import (
	"context"
	"errors"

	"postergen/internal/domain"
)

// classify maps a stage error onto the failure taxonomy. Errors the stage
// already classified keep their kind and message, except for timeouts, which
// are reported as such.
func classify(stage domain.State, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind := domain.KindTransport
		if stage == domain.StateNormalizing {
			kind = domain.KindDecode
		}
		return domain.NewError(kind, timeoutMessage(stage), err)
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}
	switch stage {
	case domain.StateNormalizing:
		return domain.NewError(domain.KindDecode, "image could not be processed", err)
	case domain.StateUploading:
		return domain.NewError(domain.KindTransport, "upload failed", err)
	default:
		return domain.NewError(domain.KindTransport, "generation request failed", err)
	}
}

func timeoutMessage(stage domain.State) string {
	switch stage {
	case domain.StateNormalizing:
		return "image processing timed out"
	case domain.StateUploading:
		return "upload timed out"
	default:
		return "generation timed out"
	}
}
