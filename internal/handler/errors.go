package handler

import (
	"errors"
	"net/http"

	"instantin-core-api/internal/model"
	"instantin-core-api/internal/repository"
	"instantin-core-api/pkg/apierror"
	"instantin-core-api/pkg/response"
)

// writeError maps domain errors onto the API error taxonomy. Everything in
// the domain taxonomy is caller-recoverable, so nothing here is a 500
// except genuinely unknown failures.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		response.Error(w, apierror.NotFound(""))
	case errors.Is(err, model.ErrInsufficientStock):
		response.Error(w, apierror.Conflict(err.Error()))
	case errors.Is(err, model.ErrInvalidTransition):
		response.Error(w, apierror.UnprocessableEntity("INVALID_TRANSITION", err.Error()))
	case errors.Is(err, model.ErrOrderHeld):
		response.Error(w, apierror.UnprocessableEntity("ORDER_HELD", err.Error()))
	case errors.Is(err, model.ErrSplitConfiguration):
		response.Error(w, apierror.UnprocessableEntity("SPLIT_CONFIGURATION", err.Error()))
	case errors.Is(err, model.ErrCapacityExceeded):
		response.Error(w, apierror.Conflict(err.Error()))
	case errors.Is(err, model.ErrDuplicateParticipant):
		response.Error(w, apierror.Conflict(err.Error()))
	case errors.Is(err, model.ErrRaffleNotDrawable):
		response.Error(w, apierror.UnprocessableEntity("RAFFLE_NOT_DRAWABLE", err.Error()))
	case errors.Is(err, repository.ErrOptimisticLock):
		response.Error(w, apierror.Conflict("the record was modified concurrently, retry"))
	default:
		response.Error(w, apierror.InternalError(""))
	}
}
