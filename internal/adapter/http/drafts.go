package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/anees-mohamed-ar/logistic/internal/app"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// --- Create / Update ---

type CreateDraftInput struct {
	CallerHeaders
	Body domain.ShipmentFields
}

type UpdateDraftInput struct {
	CallerHeaders
	ID   string `path:"id" doc:"Draft ID"`
	Body domain.ShipmentFields
}

type DraftOutput struct {
	Body domain.DraftRecord
}

// --- Get / Delete / Lease actions ---

type DraftIDInput struct {
	CallerHeaders
	ID string `path:"id" doc:"Draft ID"`
}

// --- List ---

type ListDraftsInput struct {
	CallerHeaders
}

type ListDraftsOutput struct {
	Body []domain.DraftRecord
}

// --- Check lock ---

type LockStatusResponse struct {
	DraftID          string     `json:"draftId"`
	IsLocked         bool       `json:"isLocked"`
	LockedBy         *int64     `json:"lockedBy,omitempty"`
	LockedAt         *time.Time `json:"lockedAt,omitempty"`
	LockedAgoSeconds int64      `json:"lockedAgoSeconds" doc:"Lease age in whole seconds"`
	WasLocked        bool       `json:"wasLocked" doc:"A stale lease was cleared by this check"`
}

type LockStatusOutput struct {
	Body LockStatusResponse
}

// --- Convert ---

type ConvertInput struct {
	CallerHeaders
	ID   string `path:"id" doc:"Draft ID"`
	Body struct {
		Number    string                `json:"number" minLength:"1" doc:"Permanent number to issue"`
		Overrides domain.ShipmentFields `json:"overrides,omitempty" required:"false" doc:"Fields that replace the draft's values"`
	}
}

type RecordOutput struct {
	Body domain.PermanentRecord
}

// --- Sweep ---

type SweepInput struct {
	CallerHeaders
}

type SweepOutput struct {
	Body struct {
		Released int `json:"released" doc:"Stale leases cleared"`
	}
}

func registerDrafts(api huma.API, svc Services) {
	drafts := svc.Drafts

	huma.Register(api, huma.Operation{
		OperationID:   "create-draft",
		Method:        http.MethodPost,
		Path:          "/api/v1/drafts",
		Summary:       "Create a draft record",
		Tags:          []string{"Drafts"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateDraftInput) (*DraftOutput, error) {
		draft, err := drafts.Create(ctx, input.caller(), input.Body)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DraftOutput{Body: draft}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-drafts",
		Method:      http.MethodGet,
		Path:        "/api/v1/drafts",
		Summary:     "List open drafts",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *ListDraftsInput) (*ListDraftsOutput, error) {
		list, err := drafts.List(ctx, input.caller())
		if err != nil {
			return nil, toHumaError(err)
		}
		if list == nil {
			list = []domain.DraftRecord{}
		}
		return &ListDraftsOutput{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/api/v1/drafts/{id}",
		Summary:     "Get a draft by ID",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *DraftIDInput) (*DraftOutput, error) {
		draft, err := drafts.Get(ctx, input.caller(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DraftOutput{Body: draft}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-draft",
		Method:      http.MethodPut,
		Path:        "/api/v1/drafts/{id}",
		Summary:     "Replace a draft's shipment fields",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *UpdateDraftInput) (*DraftOutput, error) {
		draft, err := drafts.Update(ctx, input.caller(), input.ID, input.Body)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DraftOutput{Body: draft}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-draft",
		Method:        http.MethodDelete,
		Path:          "/api/v1/drafts/{id}",
		Summary:       "Delete an unconverted draft",
		Tags:          []string{"Drafts"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DraftIDInput) (*struct{}, error) {
		if err := drafts.Delete(ctx, input.caller(), input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lock-draft",
		Method:      http.MethodPost,
		Path:        "/api/v1/drafts/{id}/lock",
		Summary:     "Acquire or refresh the editing lease",
		Tags:        []string{"Leases"},
	}, func(ctx context.Context, input *DraftIDInput) (*DraftOutput, error) {
		draft, err := drafts.Lock(ctx, input.caller(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DraftOutput{Body: draft}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unlock-draft",
		Method:        http.MethodPost,
		Path:          "/api/v1/drafts/{id}/unlock",
		Summary:       "Release the caller's lease",
		Tags:          []string{"Leases"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DraftIDInput) (*struct{}, error) {
		if err := drafts.Unlock(ctx, input.caller(), input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "force-unlock-draft",
		Method:        http.MethodPost,
		Path:          "/api/v1/drafts/{id}/force-unlock",
		Summary:       "Release any user's lease",
		Tags:          []string{"Leases"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DraftIDInput) (*struct{}, error) {
		if err := drafts.ForceUnlock(ctx, input.caller(), input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-draft-lock",
		Method:      http.MethodGet,
		Path:        "/api/v1/drafts/{id}/lock",
		Summary:     "Report the lease on a draft",
		Tags:        []string{"Leases"},
	}, func(ctx context.Context, input *DraftIDInput) (*LockStatusOutput, error) {
		status, err := drafts.CheckLock(ctx, input.caller(), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &LockStatusOutput{Body: LockStatusResponse{
			DraftID:          status.DraftID,
			IsLocked:         status.IsLocked,
			LockedBy:         status.Holder,
			LockedAt:         status.LockedAt,
			LockedAgoSeconds: int64(status.LockedAgo / time.Second),
			WasLocked:        status.WasLocked,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "convert-draft",
		Method:        http.MethodPost,
		Path:          "/api/v1/drafts/{id}/convert",
		Summary:       "Convert a leased draft into a permanent record",
		Tags:          []string{"Drafts"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ConvertInput) (*RecordOutput, error) {
		record, err := drafts.Convert(ctx, input.caller(), app.ConvertRequest{
			DraftID:   input.ID,
			Number:    input.Body.Number,
			Overrides: input.Body.Overrides,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordOutput{Body: record}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-leases",
		Method:      http.MethodPost,
		Path:        "/api/v1/drafts/sweep",
		Summary:     "Clear stale leases now",
		Tags:        []string{"Leases"},
	}, func(ctx context.Context, input *SweepInput) (*SweepOutput, error) {
		n, err := svc.Sweeper.Trigger(ctx, input.caller())
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &SweepOutput{}
		out.Body.Released = n
		return out, nil
	})
}
