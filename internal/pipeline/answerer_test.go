package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/lectern/internal/catalog"
	"github.com/cloo-solutions/lectern/internal/domain"
	"github.com/cloo-solutions/lectern/internal/store"
)

// MockEntrySearcher is a mock implementation of EntrySearcher
type MockEntrySearcher struct {
	mock.Mock
}

func (m *MockEntrySearcher) Search(ctx context.Context, collection, queryText string, limit int, minScore float32) ([]store.SearchResult, error) {
	args := m.Called(ctx, collection, queryText, limit, minScore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.SearchResult), args.Error(1)
}

// MockAnswerSynthesizer is a mock implementation of AnswerSynthesizer
type MockAnswerSynthesizer struct {
	mock.Mock
}

func (m *MockAnswerSynthesizer) Complete(ctx context.Context, instructions, input string) (string, error) {
	args := m.Called(ctx, instructions, input)
	return args.String(0), args.Error(1)
}

// MockQueryRecorder is a mock implementation of QueryRecorder
type MockQueryRecorder struct {
	mock.Mock
}

func (m *MockQueryRecorder) LogQuery(ctx context.Context, entry catalog.QueryLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func searchResults() []store.SearchResult {
	return []store.SearchResult{
		{ID: "index1", Text: "Paxos -  Two phases.", Score: 0.95},
		{ID: "index2", Text: "Raft -  Leader election.", Score: 0.88},
		{ID: "index3", Text: "Clocks -  Partial order.", Score: 0.80},
	}
}

func TestAnswerer_Answer_SynthesizesPerResult(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)

	mockSearcher.On("Search", mock.Anything, "c", "what is consensus", 3, float32(0.7)).
		Return(searchResults(), nil)
	mockSynth.On("Complete", mock.Anything, DefaultSummaryPrompt, mock.Anything).Return("synthesized", nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "what is consensus", SearchOptions{Limit: 3, MinScore: 0.7})
	require.NoError(t, err)

	var answers []Answer
	for answer, synthErr := range seq {
		require.NoError(t, synthErr)
		answers = append(answers, answer)
	}

	require.Len(t, answers, 3)
	// Relevance order is preserved
	assert.Equal(t, "index1", answers[0].EntryID)
	assert.Equal(t, float32(0.95), answers[0].Score)
	assert.Equal(t, "Paxos -  Two phases.", answers[0].Entry)
	assert.Equal(t, "synthesized", answers[0].Text)
	assert.Equal(t, "index3", answers[2].EntryID)
	mockSynth.AssertNumberOfCalls(t, "Complete", 3)
}

func TestAnswerer_Answer_SynthesisInputCarriesQuestionAndEntry(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)

	mockSearcher.On("Search", mock.Anything, "c", "what is paxos", 1, float32(0)).
		Return(searchResults()[:1], nil)
	mockSynth.On("Complete", mock.Anything, DefaultSummaryPrompt,
		"Question: what is paxos\n\nKnowledge:\nPaxos -  Two phases.").Return("answer", nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "what is paxos", SearchOptions{Limit: 1})
	require.NoError(t, err)
	for _, synthErr := range seq {
		require.NoError(t, synthErr)
	}

	mockSynth.AssertExpectations(t)
}

func TestAnswerer_Answer_SynthesisIsLazy(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)

	mockSearcher.On("Search", mock.Anything, "c", mock.Anything, 3, float32(0)).
		Return(searchResults(), nil)
	mockSynth.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "q", SearchOptions{Limit: 3})
	require.NoError(t, err)

	// No synthesis happens until the sequence is consumed
	mockSynth.AssertNumberOfCalls(t, "Complete", 0)

	// Breaking after the first answer skips the remaining generation calls
	for _, synthErr := range seq {
		require.NoError(t, synthErr)
		break
	}
	mockSynth.AssertNumberOfCalls(t, "Complete", 1)
}

func TestAnswerer_Answer_RestartsFromFirstResult(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)

	mockSearcher.On("Search", mock.Anything, "c", mock.Anything, 2, float32(0)).
		Return(searchResults()[:2], nil)
	mockSynth.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "q", SearchOptions{Limit: 2})
	require.NoError(t, err)

	first := ""
	for answer := range seq {
		first = answer.EntryID
		break
	}
	assert.Equal(t, "index1", first)

	// A second iteration starts over from the first result
	var ids []string
	for answer, synthErr := range seq {
		require.NoError(t, synthErr)
		ids = append(ids, answer.EntryID)
	}
	assert.Equal(t, []string{"index1", "index2"}, ids)

	// One call from the broken-off pass, two from the full pass; the search
	// itself ran once
	mockSynth.AssertNumberOfCalls(t, "Complete", 3)
	mockSearcher.AssertNumberOfCalls(t, "Search", 1)
}

func TestAnswerer_Answer_SynthesisFailureIsIsolated(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)

	mockSearcher.On("Search", mock.Anything, "c", mock.Anything, 3, float32(0)).
		Return(searchResults(), nil)
	mockSynth.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(input string) bool {
		return strings.Contains(input, "Raft")
	})).Return("", errors.New("model glitch"))
	mockSynth.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "q", SearchOptions{Limit: 3})
	require.NoError(t, err)

	var ok, failed int
	var failedID string
	for answer, synthErr := range seq {
		if synthErr != nil {
			failed++
			failedID = answer.EntryID
			assert.ErrorIs(t, synthErr, domain.ErrSynthesisFailure)
			assert.NotEmpty(t, answer.Entry)
			continue
		}
		ok++
	}

	// The failing entry is reported and the rest still synthesize
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, "index2", failedID)
}

func TestAnswerer_Answer_EmptyResults(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)

	mockSearcher.On("Search", mock.Anything, "c", mock.Anything, 1, float32(0.99)).
		Return([]store.SearchResult{}, nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "q", SearchOptions{Limit: 1, MinScore: 0.99})
	require.NoError(t, err)

	count := 0
	for range seq {
		count++
	}
	assert.Equal(t, 0, count)
	mockSynth.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerer_Answer_SearchFailureIsEager(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)

	storeDown := domain.NewDomainError(domain.ErrCodeStoreUnavailable, "connection refused")
	mockSearcher.On("Search", mock.Anything, "c", mock.Anything, 1, float32(0)).Return(nil, storeDown)

	answerer := NewAnswerer(mockSearcher, new(MockAnswerSynthesizer), nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "q", SearchOptions{Limit: 1})

	assert.Nil(t, seq)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "searching knowledge")
}

func TestAnswerer_Answer_EmptyQuestion(t *testing.T) {
	answerer := NewAnswerer(new(MockEntrySearcher), new(MockAnswerSynthesizer), nil, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "   ", SearchOptions{Limit: 1})

	assert.Nil(t, seq)
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}

func TestAnswerer_Answer_LogsQuery(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)
	mockRecorder := new(MockQueryRecorder)

	mockSearcher.On("Search", mock.Anything, "c", "what is paxos", 3, float32(0)).
		Return(searchResults(), nil)
	mockRecorder.On("LogQuery", mock.Anything, mock.MatchedBy(func(entry catalog.QueryLogEntry) bool {
		return entry.Collection == "c" &&
			entry.Question == "what is paxos" &&
			entry.Results == 3 &&
			entry.TopScore > 0.94
	})).Return(nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, mockRecorder, AnswererConfig{Collection: "c"})

	// The question is logged at retrieval time, before any iteration
	_, err := answerer.Answer(context.Background(), "what is paxos", SearchOptions{Limit: 3})

	require.NoError(t, err)
	mockRecorder.AssertExpectations(t)
}

func TestAnswerer_Answer_RecorderFailureIsNonFatal(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)
	mockRecorder := new(MockQueryRecorder)

	mockSearcher.On("Search", mock.Anything, "c", mock.Anything, 1, float32(0)).
		Return(searchResults()[:1], nil)
	mockSynth.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)
	mockRecorder.On("LogQuery", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	answerer := NewAnswerer(mockSearcher, mockSynth, mockRecorder, AnswererConfig{Collection: "c"})

	seq, err := answerer.Answer(context.Background(), "q", SearchOptions{Limit: 1})

	require.NoError(t, err)
	count := 0
	for _, synthErr := range seq {
		require.NoError(t, synthErr)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestAnswerer_Answer_CancellationStopsIteration(t *testing.T) {
	mockSearcher := new(MockEntrySearcher)
	mockSynth := new(MockAnswerSynthesizer)

	mockSearcher.On("Search", mock.Anything, "c", mock.Anything, 3, float32(0)).
		Return(searchResults(), nil)
	mockSynth.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)

	answerer := NewAnswerer(mockSearcher, mockSynth, nil, AnswererConfig{Collection: "c"})

	ctx, cancel := context.WithCancel(context.Background())
	seq, err := answerer.Answer(ctx, "q", SearchOptions{Limit: 3})
	require.NoError(t, err)

	var yields int
	var lastErr error
	for _, synthErr := range seq {
		yields++
		lastErr = synthErr
		cancel()
	}

	// First item synthesized, second yield reports the cancellation, then
	// iteration ends
	assert.Equal(t, 2, yields)
	assert.ErrorIs(t, lastErr, context.Canceled)
	mockSynth.AssertNumberOfCalls(t, "Complete", 1)
}
