// Package http exposes the draft, range and record services as a huma API.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/anees-mohamed-ar/logistic/internal/app"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Services are the application services the API serves.
type Services struct {
	Drafts  *app.DraftService
	Ranges  *app.NumberAllocator
	Records *app.RecordService
	Sweeper *app.LeaseSweeper

	// PingInterval spaces keep-alive events on the notification stream.
	PingInterval time.Duration
}

// DefaultPingInterval is used when Services.PingInterval is not set.
const DefaultPingInterval = 25 * time.Second

// CallerHeaders carry the identity a request claims. The identity gate
// verifies it on every operation.
type CallerHeaders struct {
	UserID   int64 `header:"X-User-ID" required:"true" minimum:"1" doc:"Acting user"`
	TenantID int64 `header:"X-Company-ID" required:"true" minimum:"1" doc:"Company the request is scoped to"`
	BranchID int64 `header:"X-Branch-ID" required:"false" doc:"Branch the request is scoped to; omit for the whole company"`
}

func (h CallerHeaders) caller() app.Caller {
	c := app.Caller{UserID: h.UserID, TenantID: h.TenantID}
	if h.BranchID > 0 {
		branch := h.BranchID
		c.BranchID = &branch
	}
	return c
}

// Register adds all API routes to the Huma API.
func Register(api huma.API, svc Services) {
	if svc.PingInterval <= 0 {
		svc.PingInterval = DefaultPingInterval
	}
	registerDrafts(api, svc)
	registerStream(api, svc)
	registerRanges(api, svc)
	registerRecords(api, svc)
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch domain.KindOf(err) {
	case domain.KindAccessDenied:
		return huma.Error403Forbidden(err.Error())
	case domain.KindNotFound:
		return huma.Error404NotFound(err.Error())
	case domain.KindAlreadyLocked:
		var locked *domain.AlreadyLockedError
		if errors.As(err, &locked) {
			return huma.NewError(http.StatusLocked, locked.Error(),
				&huma.ErrorDetail{Location: "holder", Value: locked.Holder},
				&huma.ErrorDetail{Location: "lockedAt", Value: locked.LockedAt.Format(time.RFC3339)},
			)
		}
		return huma.NewError(http.StatusLocked, err.Error())
	case domain.KindNotHolder, domain.KindNotLocked, domain.KindDuplicateNumber,
		domain.KindNoActiveRange, domain.KindAlreadyAssigned:
		return huma.Error409Conflict(err.Error())
	case domain.KindAlreadyConverted:
		return huma.Error410Gone(err.Error())
	case domain.KindInvalidRange, domain.KindInvalidTransition, domain.KindInvalidInput:
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error500InternalServerError("internal server error")
}
