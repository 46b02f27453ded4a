package redis

import (
	"context"
	"testing"
	"time"

	"github.com/ErlanBelekov/token-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRecordOutcome_NilRecorderIsNoop(t *testing.T) {
	var s *StatsRecorder
	err := s.RecordOutcome(context.Background(), domain.OutcomeEvent{Operation: domain.OperationUseToken, Outcome: domain.OutcomeOK})
	assert.NoError(t, err)

	err = NewStatsRecorder(nil).RecordOutcome(context.Background(), domain.OutcomeEvent{})
	assert.NoError(t, err)
}

func TestKeys(t *testing.T) {
	s := NewStatsRecorder(nil, WithPrefix(":ledger:stats:"))
	at := time.Date(2026, 1, 2, 3, 4, 59, 0, time.FixedZone("X", 3600))

	assert.Equal(t, "ledger:stats:use_token:total", s.TotalKey(domain.OperationUseToken))
	assert.Equal(t, "ledger:stats:create_token:minute:202601020204", s.MinuteKey(domain.OperationCreateToken, at))
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
