package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

type RecordNumberInput struct {
	CallerHeaders
	Number string `path:"number" doc:"Permanent number"`
}

type EditableOutput struct {
	Body struct {
		Number        string    `json:"number"`
		CanEdit       bool      `json:"canEdit"`
		Privileged    bool      `json:"privileged"`
		EditableUntil time.Time `json:"editableUntil" doc:"End of the edit window for non-privileged users"`
	}
}

func registerRecords(api huma.API, svc Services) {
	records := svc.Records

	huma.Register(api, huma.Operation{
		OperationID: "get-record",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{number}",
		Summary:     "Get a permanent record",
		Tags:        []string{"Records"},
	}, func(ctx context.Context, input *RecordNumberInput) (*RecordOutput, error) {
		record, err := records.Get(ctx, input.caller(), input.Number)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RecordOutput{Body: record}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-editable",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{number}/editable",
		Summary:     "Report whether the caller may still edit a record",
		Tags:        []string{"Records"},
	}, func(ctx context.Context, input *RecordNumberInput) (*EditableOutput, error) {
		perm, err := records.CanEdit(ctx, input.caller(), input.Number)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &EditableOutput{}
		out.Body.Number = perm.Number
		out.Body.CanEdit = perm.CanEdit
		out.Body.Privileged = perm.Privileged
		out.Body.EditableUntil = perm.EditableUntil
		return out, nil
	})
}
