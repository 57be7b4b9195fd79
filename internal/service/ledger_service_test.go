package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/repository/memory"
)

func TestLedgerConcurrentAutoNumberedAppends(t *testing.T) {
	ledger := NewLedgerService(memory.NewAttemptStore(), time.Second, 10, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Record(ctx, "u1", "v1", model.AssessmentAttempt{TestScore: 50, AssessmentID: "quiz-1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := ledger.List(ctx, "u1", "v1")
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, a := range list {
		assert.Equal(t, i+1, a.AttemptNumber)
	}
}

func TestLedgerListUnknownPairIsEmpty(t *testing.T) {
	ledger := NewLedgerService(memory.NewAttemptStore(), time.Second, 3, zerolog.Nop())

	list, err := ledger.List(context.Background(), "nobody", "nothing")

	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestLedgerRejectsOutOfRangeScore(t *testing.T) {
	ledger := NewLedgerService(memory.NewAttemptStore(), time.Second, 3, zerolog.Nop())

	_, err := ledger.Record(context.Background(), "u1", "v1", model.AssessmentAttempt{TestScore: 101, AssessmentID: "quiz-1"})

	assert.True(t, apperror.IsValidation(err))
}
