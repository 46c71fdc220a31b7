package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/anees-mohamed-ar/logistic/internal/app"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// RangeResponse is the API representation of a number range.
type RangeResponse struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	BranchID  *int64    `json:"branchId,omitempty"`
	Start     int64     `json:"start" doc:"First number of the range"`
	End       int64     `json:"end" doc:"One past the last number"`
	Cursor    int64     `json:"cursor" doc:"Next number to issue"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toRangeResponse(r domain.NumberRange) RangeResponse {
	return RangeResponse{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		BranchID:  r.BranchID,
		Start:     r.Start,
		End:       r.End,
		Cursor:    r.Cursor,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type AddRangeInput struct {
	CallerHeaders
	Body struct {
		OwnerID int64  `json:"ownerId" minimum:"1" doc:"User receiving the range"`
		Start   int64  `json:"start" minimum:"0" doc:"First number"`
		Count   int64  `json:"count" minimum:"1" doc:"How many numbers"`
		Status  string `json:"status,omitempty" required:"false" enum:"queued,active" default:"queued"`
	}
}

type AssignRangeInput struct {
	CallerHeaders
	Body struct {
		OwnerID int64 `json:"ownerId,omitempty" required:"false" doc:"User receiving the range; defaults to the caller"`
		Start   int64 `json:"start" minimum:"0"`
		Count   int64 `json:"count" minimum:"1"`
	}
}

type RangeOutput struct {
	Body RangeResponse
}

type RangeCallerInput struct {
	CallerHeaders
}

type RangeOwnerInput struct {
	CallerHeaders
	OwnerID int64 `query:"ownerId" required:"false" doc:"Owner to report on, defaults to the caller"`
}

type NextNumberOutput struct {
	Body struct {
		Number int64 `json:"number"`
	}
}

type UsageOutput struct {
	Body struct {
		Range       RangeResponse `json:"range"`
		TotalIssued int64         `json:"totalIssued"`
		Remaining   int64         `json:"remaining"`
		PercentUsed float64       `json:"percentUsed"`
		Queued      int           `json:"queued" doc:"Ranges waiting behind the active one"`
		Consumed    int64         `json:"consumed" doc:"Issued numbers used by conversions"`
	}
}

type HasActiveOutput struct {
	Body struct {
		HasActive bool `json:"hasActive"`
	}
}

type ListRangesInput struct {
	CallerHeaders
	OwnerID int64  `query:"ownerId" required:"false" doc:"Filter by owner"`
	Status  string `query:"status" required:"false" doc:"Filter by status"`
	Limit   int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset  int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListRangesOutput struct {
	Body []RangeResponse
}

func registerRanges(api huma.API, svc Services) {
	ranges := svc.Ranges

	huma.Register(api, huma.Operation{
		OperationID:   "add-range",
		Method:        http.MethodPost,
		Path:          "/api/v1/ranges",
		Summary:       "Add a number range for a user",
		Tags:          []string{"Ranges"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AddRangeInput) (*RangeOutput, error) {
		r, err := ranges.AddRange(ctx, input.caller(), app.RangeRequest{
			OwnerID: input.Body.OwnerID,
			Start:   input.Body.Start,
			Count:   input.Body.Count,
			Status:  domain.RangeStatus(input.Body.Status),
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RangeOutput{Body: toRangeResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-range",
		Method:        http.MethodPost,
		Path:          "/api/v1/ranges/assign",
		Summary:       "Assign a first, active range",
		Tags:          []string{"Ranges"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AssignRangeInput) (*RangeOutput, error) {
		r, err := ranges.AssignRange(ctx, input.caller(), app.RangeRequest{
			OwnerID: input.Body.OwnerID,
			Start:   input.Body.Start,
			Count:   input.Body.Count,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RangeOutput{Body: toRangeResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-number",
		Method:      http.MethodPost,
		Path:        "/api/v1/ranges/next",
		Summary:     "Issue the caller's next permanent number",
		Tags:        []string{"Ranges"},
	}, func(ctx context.Context, input *RangeCallerInput) (*NextNumberOutput, error) {
		n, err := ranges.NextNumber(ctx, input.caller())
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &NextNumberOutput{}
		out.Body.Number = n
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "range-usage",
		Method:      http.MethodGet,
		Path:        "/api/v1/ranges/usage",
		Summary:     "Report usage of an owner's current range",
		Tags:        []string{"Ranges"},
	}, func(ctx context.Context, input *RangeOwnerInput) (*UsageOutput, error) {
		u, err := ranges.Usage(ctx, input.caller(), input.OwnerID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &UsageOutput{}
		out.Body.Range = toRangeResponse(u.Range)
		out.Body.TotalIssued = u.TotalIssued
		out.Body.Remaining = u.Remaining
		out.Body.PercentUsed = u.PercentUsed
		out.Body.Queued = u.Queued
		out.Body.Consumed = u.Consumed
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "has-active-range",
		Method:      http.MethodGet,
		Path:        "/api/v1/ranges/active",
		Summary:     "Report whether an owner has an active range",
		Tags:        []string{"Ranges"},
	}, func(ctx context.Context, input *RangeOwnerInput) (*HasActiveOutput, error) {
		ok, err := ranges.HasActiveRanges(ctx, input.caller(), input.OwnerID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &HasActiveOutput{}
		out.Body.HasActive = ok
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ranges",
		Method:      http.MethodGet,
		Path:        "/api/v1/ranges",
		Summary:     "List number ranges",
		Tags:        []string{"Ranges"},
	}, func(ctx context.Context, input *ListRangesInput) (*ListRangesOutput, error) {
		filter := domain.RangeFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.OwnerID != 0 {
			owner := input.OwnerID
			filter.OwnerID = &owner
		}
		if input.Status != "" {
			s := domain.RangeStatus(input.Status)
			filter.Status = &s
		}

		list, err := ranges.ListRanges(ctx, input.caller(), filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]RangeResponse, len(list))
		for i, r := range list {
			resp[i] = toRangeResponse(r)
		}
		return &ListRangesOutput{Body: resp}, nil
	})
}
