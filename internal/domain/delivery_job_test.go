package domain

import (
	"testing"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emailMethod(id string) DeliveryMethod {
	return DeliveryMethod{
		Id:               id,
		Type:             MethodTypeEmail,
		RecipientContact: RecipientContact{Email: id + "@example.com"},
		RequiredFields:   []string{FieldContactEmail},
	}
}

func newJob(t *testing.T, ids ...string) DeliveryJob {
	t.Helper()

	job := DeliveryJob{
		Id:            "job-1",
		CaseId:        "case-1",
		CreatedBy:     "clerk",
		PriorityOrder: ids,
	}
	for _, id := range ids {
		job.Methods = append(job.Methods, emailMethod(id))
	}
	require.NoError(t, job.Init(t0))
	return job
}

func TestDeliveryJob_Validate(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name    string
		mutate  func(job *DeliveryJob)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(job *DeliveryJob) {},
		}, {
			name:    "empty case id",
			mutate:  func(job *DeliveryJob) { job.CaseId = " " },
			wantErr: errs.ErrValidation,
		}, {
			name:    "no methods",
			mutate:  func(job *DeliveryJob) { job.Methods = nil; job.PriorityOrder = nil },
			wantErr: errs.ErrValidation,
		}, {
			name: "duplicated method id",
			mutate: func(job *DeliveryJob) {
				job.Methods[1].Id = "a"
			},
			wantErr: errs.ErrValidation,
		}, {
			name:    "priority order misses a method",
			mutate:  func(job *DeliveryJob) { job.PriorityOrder = []string{"a"} },
			wantErr: errs.ErrValidation,
		}, {
			name:    "priority order repeats a method",
			mutate:  func(job *DeliveryJob) { job.PriorityOrder = []string{"a", "a"} },
			wantErr: errs.ErrValidation,
		}, {
			name:    "priority order references unknown method",
			mutate:  func(job *DeliveryJob) { job.PriorityOrder = []string{"a", "c"} },
			wantErr: errs.ErrValidation,
		}, {
			name:    "contact not required",
			mutate:  func(job *DeliveryJob) { job.Methods[0].RequiredFields = nil },
			wantErr: errs.ErrValidation,
		}, {
			name: "unknown required field",
			mutate: func(job *DeliveryJob) {
				job.Methods[0].RequiredFields = append(job.Methods[0].RequiredFields, "recipientContact.fax")
			},
			wantErr: errs.ErrValidation,
		}, {
			name:    "invalid type",
			mutate:  func(job *DeliveryJob) { job.Methods[0].Type = "PIGEON" },
			wantErr: errs.ErrValidation,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			job := DeliveryJob{
				CaseId:        "case-1",
				CreatedBy:     "clerk",
				Methods:       []DeliveryMethod{emailMethod("a"), emailMethod("b")},
				PriorityOrder: []string{"b", "a"},
			}
			tc.mutate(&job)

			err := job.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDeliveryJob_Recompute(t *testing.T) {
	t.Parallel()

	job := newJob(t, "a", "b")
	assert.Equal(t, DeliveryStatusCreated, job.Status)
	require.Len(t, job.History, 1)
	assert.Equal(t, HistoryEventCreated, job.History[0].Event)

	require.NoError(t, job.Dispatch("a", t0.Add(time.Minute)))
	assert.Equal(t, DeliveryStatusPending, job.Status)
	assert.ErrorIs(t, job.RecordConfirm("b", ConfirmPayload{Actor: "mailer"}, t0), errs.ErrInvalidTransition)

	require.NoError(t, job.Dispatch("b", t0.Add(2*time.Minute)))
	require.NoError(t, job.RecordConfirm("b", ConfirmPayload{Actor: "mailer"}, t0.Add(3*time.Minute)))
	// 非头部方法送达只算部分完成
	assert.Equal(t, DeliveryStatusPartialCompleted, job.Status)

	snapshot := job.Clone()
	job.Recompute()
	job.Recompute()
	assert.Equal(t, snapshot.Status, job.Status)
	assert.Equal(t, snapshot.Methods, job.Methods)

	require.NoError(t, job.RecordConfirm("a", ConfirmPayload{Actor: "mailer"}, t0.Add(4*time.Minute)))
	assert.Equal(t, DeliveryStatusCompleted, job.Status)
	assert.True(t, job.Status.IsTerminal())
}

func TestDeliveryJob_Clone(t *testing.T) {
	t.Parallel()

	job := newJob(t, "a")
	cp := job.Clone()
	cp.Methods[0].ProofFiles = append(cp.Methods[0].ProofFiles, "f-1")
	cp.History[0].Actor = "someone"
	cp.PriorityOrder[0] = "x"

	assert.Empty(t, job.Methods[0].ProofFiles)
	assert.Equal(t, "clerk", job.History[0].Actor)
	assert.Equal(t, "a", job.PriorityOrder[0])
}

func TestJobFilter_Normalize(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name    string
		filter  JobFilter
		want    JobFilter
		wantErr error
	}{
		{name: "default limit", filter: JobFilter{}, want: JobFilter{Limit: DefaultListLimit}},
		{name: "capped limit", filter: JobFilter{Limit: 1000}, want: JobFilter{Limit: MaxListLimit}},
		{
			name:   "status",
			filter: JobFilter{Status: DeliveryStatusFailed, Limit: 5},
			want:   JobFilter{Status: DeliveryStatusFailed, Limit: 5},
		},
		{name: "invalid status", filter: JobFilter{Status: "DONE"}, wantErr: errs.ErrValidation},
		{name: "negative offset", filter: JobFilter{Offset: -1}, wantErr: errs.ErrValidation},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := tc.filter.Normalize()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
