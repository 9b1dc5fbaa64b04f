package verification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/record"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

const autoTrust = 0.85

func TestQueue_List(t *testing.T) {
	owner := uuid.New()
	risky := &document.Document{ID: uuid.New(), OwnerID: owner, Status: document.StatusPendingVerification, Confidence: new(0.7)}
	sure := &document.Document{ID: uuid.New(), OwnerID: owner, Status: document.StatusPendingVerification, Confidence: new(0.92)}

	type testCase struct {
		name      string
		filter    verification.Filter
		setupMock func(m *verification.MockRepository)
		wantLow   []bool
		wantErr   error
	}

	tests := []testCase{
		{
			name:   "Defaults",
			filter: verification.Filter{OwnerID: owner},
			setupMock: func(m *verification.MockRepository) {
				m.EXPECT().ListPending(gomock.Any(), verification.Query{
					OwnerID: owner,
					Sort:    verification.SortConfidence,
					Limit:   verification.DefaultLimit,
				}).Return([]*document.Document{risky, sure}, nil)
			},
			wantLow: []bool{true, false},
		},
		{
			name:   "LowConfidenceOnly",
			filter: verification.Filter{OwnerID: owner, LowConfidenceOnly: true, Sort: verification.SortAge, Limit: 10_000, Offset: -3},
			setupMock: func(m *verification.MockRepository) {
				m.EXPECT().ListPending(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, q verification.Query) ([]*document.Document, error) {
						require.NotNil(t, q.ConfidenceBelow)
						assert.InDelta(t, autoTrust, *q.ConfidenceBelow, 1e-9)
						assert.Equal(t, verification.SortAge, q.Sort)
						assert.Equal(t, verification.MaxLimit, q.Limit)
						assert.Zero(t, q.Offset)

						return []*document.Document{risky}, nil
					})
			},
			wantLow: []bool{true},
		},
		{
			name:      "UnknownSort",
			filter:    verification.Filter{OwnerID: owner, Sort: "size"},
			setupMock: func(_ *verification.MockRepository) {},
			wantErr:   document.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := verification.NewMockRepository(ctrl)
			tt.setupMock(repo)

			items, err := verification.NewQueue(repo, verification.NewMockDecider(ctrl), autoTrust).List(context.Background(), tt.filter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Len(t, items, len(tt.wantLow))

			for i, want := range tt.wantLow {
				assert.Equal(t, want, items[i].LowConfidence)
			}
		})
	}
}

func TestQueue_Count(t *testing.T) {
	owner := uuid.New()
	ctrl := gomock.NewController(t)
	repo := verification.NewMockRepository(ctrl)
	repo.EXPECT().CountPending(gomock.Any(), owner).Return(3, nil)
	repo.EXPECT().CountPending(gomock.Any(), owner).Return(0, errors.New("db down"))

	q := verification.NewQueue(repo, nil, autoTrust)

	n, err := q.Count(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = q.Count(context.Background(), owner)
	assert.Error(t, err)
}

func TestQueue_Decide(t *testing.T) {
	owner := uuid.New()
	docID := uuid.New()
	expenseID := uuid.New()

	type testCase struct {
		name      string
		decision  verification.Decision
		setupMock func(m *verification.MockDecider)
		want      *verification.Outcome
		wantErr   error
	}

	tests := []testCase{
		{
			name: "Approve",
			decision: verification.Decision{
				DocumentID:  docID,
				OwnerID:     owner,
				ReviewerID:  "ana",
				Action:      verification.ActionApprove,
				Corrections: map[string]string{document.FieldTotalAmount: "12.40"},
			},
			setupMock: func(m *verification.MockDecider) {
				m.EXPECT().Approve(gomock.Any(), pipeline.Approval{
					DocumentID:  docID,
					OwnerID:     owner,
					Actor:       document.Actor{Type: document.ActorReviewer, ID: "ana"},
					Corrections: map[string]string{document.FieldTotalAmount: "12.40"},
				}).Return(&record.Materialized{Expense: &record.Expense{ID: expenseID, NeedsReview: true}}, nil)
			},
			want: &verification.Outcome{
				Status:      document.StatusVerified,
				RecordKind:  record.KindExpense,
				RecordID:    &expenseID,
				NeedsReview: true,
			},
		},
		{
			name:     "RejectDefaultsReviewerToOwner",
			decision: verification.Decision{DocumentID: docID, OwnerID: owner, Action: verification.ActionReject, Reason: "duplicate"},
			setupMock: func(m *verification.MockDecider) {
				m.EXPECT().Reject(gomock.Any(), pipeline.Rejection{
					DocumentID: docID,
					OwnerID:    owner,
					Actor:      document.Actor{Type: document.ActorReviewer, ID: owner.String()},
					Reason:     "duplicate",
				}).Return(&document.Document{ID: docID, Status: document.StatusRejected}, nil)
			},
			want: &verification.Outcome{Status: document.StatusRejected},
		},
		{
			name:     "AlreadyDecided",
			decision: verification.Decision{DocumentID: docID, OwnerID: owner, Action: verification.ActionApprove},
			setupMock: func(m *verification.MockDecider) {
				m.EXPECT().Approve(gomock.Any(), gomock.Any()).Return(nil, document.ErrConflict)
			},
			wantErr: document.ErrConflict,
		},
		{
			name: "RejectWithCorrections",
			decision: verification.Decision{
				DocumentID:  docID,
				OwnerID:     owner,
				Action:      verification.ActionReject,
				Corrections: map[string]string{document.FieldMerchant: "x"},
			},
			setupMock: func(_ *verification.MockDecider) {},
			wantErr:   document.ErrValidation,
		},
		{
			name:      "UnknownAction",
			decision:  verification.Decision{DocumentID: docID, OwnerID: owner, Action: "maybe"},
			setupMock: func(_ *verification.MockDecider) {},
			wantErr:   document.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			decider := verification.NewMockDecider(ctrl)
			tt.setupMock(decider)

			got, err := verification.NewQueue(verification.NewMockRepository(ctrl), decider, autoTrust).
				Decide(context.Background(), tt.decision)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
