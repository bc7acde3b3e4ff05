package governance

import (
	"bytes"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzy-coder/time-decay-consensus/crypto"
	"github.com/buzzy-coder/time-decay-consensus/storage"
	"github.com/buzzy-coder/time-decay-consensus/threshold"
	"github.com/buzzy-coder/time-decay-consensus/trust"
	"github.com/buzzy-coder/time-decay-consensus/types"
	"github.com/buzzy-coder/time-decay-consensus/weight"
	"github.com/buzzy-coder/time-decay-consensus/window"
)

var start = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// testClock is a settable clock shared with the engine under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestEngine(t *testing.T, kind types.ProposalType, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{now: start}
	p := NewProposal("proposal_abc", kind, start, window.Short, 10)
	e, err := NewEngine(p, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return e, clock
}

func vote(voter, proposal string, w float64, ts time.Time) *types.SignedVote {
	kp := crypto.GenerateDeterministicEd25519KeyPair([]byte(voter))
	return crypto.NewSignedVote(voter, proposal, w, ts, types.DecayLinear, kp)
}

func TestEvaluateRequiresParticipation(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal)

	var decisions []*Decision
	for _, voter := range []string{"alice", "bob", "carol"} {
		d, err := e.Evaluate(vote(voter, "proposal_abc", 1.0, start))
		require.NoError(t, err)
		decisions = append(decisions, d)
	}

	// Normal proposals need three distinct voters before anything passes
	assert.False(t, decisions[0].Passed)
	assert.False(t, decisions[1].Passed)
	assert.True(t, decisions[2].Passed)

	for i, d := range decisions {
		assert.Equal(t, uint64(i+1), d.TotalVotes)
		assert.InDelta(t, 0.51, d.Threshold, 1e-9)
		assert.Equal(t, 1.0, d.Weight)
		_, err := uuid.Parse(d.ID)
		assert.NoError(t, err)
	}

	records := e.History().Records()
	require.Len(t, records, 3)
	assert.Equal(t, decisions[2].ID, records[2].ID)
	assert.True(t, records[2].Passed)

	m := e.GetMetrics()
	assert.Equal(t, uint64(3), m.Evaluated)
	assert.Equal(t, uint64(1), m.Passed)
	assert.Equal(t, uint64(2), m.Failed)
}

func TestRepeatVoterCountsOnce(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal)

	for i := 0; i < 3; i++ {
		d, err := e.Evaluate(vote("alice", "proposal_abc", 1.0, start))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), d.TotalVotes)
		assert.False(t, d.Passed)
	}
	assert.Equal(t, uint64(1), e.Escalator().TotalVotes)
}

func TestEvaluateRejections(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal)

	tampered := vote("mallory", "proposal_abc", 1.0, start)
	tampered.Signature = append([]byte(nil), tampered.Signature...)
	tampered.Signature[0] ^= 0x01

	inflated := vote("mallory", "proposal_abc", 1.0, start)
	inflated.VoterID = "validator_001"

	testCases := []struct {
		name string
		vote *types.SignedVote
		err  error
	}{
		{"nil vote", nil, crypto.ErrInvalidSignature},
		{"other proposal", vote("alice", "proposal_xyz", 1.0, start), ErrProposalMismatch},
		{"expired", vote("alice", "proposal_abc", 1.0, start.Add(-301*time.Second)), crypto.ErrTimestampExpired},
		{"future", vote("alice", "proposal_abc", 1.0, start.Add(6*time.Second)), crypto.ErrTimestampInFuture},
		{"tampered signature", tampered, crypto.ErrInvalidSignature},
		{"impersonation", inflated, crypto.ErrInvalidSignature},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := e.Evaluate(tc.vote)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	// Rejected votes leave no trace
	assert.Equal(t, 0, e.History().Len())
	assert.Empty(t, e.Weights())
	assert.Equal(t, uint64(0), e.Escalator().TotalVotes)
	assert.Equal(t, uint64(len(testCases)), e.GetMetrics().Rejected)
}

func TestEvaluateAcceptsSkewedAndBoundaryAges(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal)

	_, err := e.Evaluate(vote("alice", "proposal_abc", 1.0, start.Add(5*time.Second)))
	assert.NoError(t, err)
	_, err = e.Evaluate(vote("bob", "proposal_abc", 1.0, start.Add(-300*time.Second)))
	assert.NoError(t, err)
}

func TestEvaluateWindowClosed(t *testing.T) {
	e, clock := newTestEngine(t, types.ProposalNormal, WithConfig(types.Config{
		MaxVoteAgeSecs: 300,
		GraceSecs:      10,
		MaxExtensions:  0,
		CacheKeyPolicy: types.KeyByVoter,
	}))

	// Deadline plus grace is still open
	at := start.Add(310 * time.Second)
	clock.Set(at)
	_, err := e.Evaluate(vote("alice", "proposal_abc", 1.0, at))
	require.NoError(t, err)

	at = start.Add(311 * time.Second)
	clock.Set(at)
	_, err = e.Evaluate(vote("bob", "proposal_abc", 1.0, at))
	assert.ErrorIs(t, err, ErrWindowClosed)
	assert.Equal(t, 1, e.History().Len())
}

func TestThresholdEscalatesWithVoteAge(t *testing.T) {
	e, clock := newTestEngine(t, types.ProposalNormal)

	at := start.Add(40 * time.Second)
	clock.Set(at)

	// 30 seconds old at evaluation: 0.51 + 0.01*30
	d, err := e.Evaluate(vote("alice", "proposal_abc", 1.0, at.Add(-30*time.Second)))
	require.NoError(t, err)
	assert.InDelta(t, 0.81, d.Threshold, 1e-9)

	// A fresh vote in the same window starts at the base threshold
	d, err = e.Evaluate(vote("bob", "proposal_abc", 1.0, at))
	require.NoError(t, err)
	assert.InDelta(t, 0.51, d.Threshold, 1e-9)

	// Future-dated votes within the skew clamp to zero elapsed
	d, err = e.Evaluate(vote("carol", "proposal_abc", 1.0, at.Add(3*time.Second)))
	require.NoError(t, err)
	assert.InDelta(t, 0.51, d.Threshold, 1e-9)
}

func TestThresholdEscalatesFromWindowStart(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.ThresholdStart = types.ThresholdFromWindow

	normal, nc := newTestEngine(t, types.ProposalNormal, WithConfig(cfg))
	critical, cc := newTestEngine(t, types.ProposalCritical, WithConfig(cfg))

	at := start.Add(10 * time.Second)
	nc.Set(at)
	cc.Set(at)

	d, err := normal.Evaluate(vote("alice", "proposal_abc", 1.0, at))
	require.NoError(t, err)
	assert.InDelta(t, 0.61, d.Threshold, 1e-9)

	// Vote age no longer matters, only time since the window opened
	d, err = normal.Evaluate(vote("bob", "proposal_abc", 1.0, at.Add(-5*time.Second)))
	require.NoError(t, err)
	assert.InDelta(t, 0.61, d.Threshold, 1e-9)

	// Aggressive profile doubles elapsed time: 0.75 + 0.02*20 caps at 0.95
	d, err = critical.Evaluate(vote("alice", "proposal_abc", 1.0, at))
	require.NoError(t, err)
	assert.InDelta(t, 0.95, d.Threshold, 1e-9)
}

func TestEscalatorOverride(t *testing.T) {
	esc := threshold.ForProposalType(types.ProposalNormal).WithEmergencyOverride()
	esc.MinVoteCount = 1

	e, _ := newTestEngine(t, types.ProposalNormal, WithEscalator(esc))
	d, err := e.Evaluate(vote("alice", "proposal_abc", 0.8, start))
	require.NoError(t, err)
	assert.Equal(t, 0.90, d.Threshold)
	assert.False(t, d.Passed)

	_, err = NewEngine(NewProposal("p", types.ProposalNormal, start, window.Short, 0),
		WithEscalator(threshold.Escalator{BaseThreshold: 0.9, Ceiling: 0.5}))
	assert.ErrorIs(t, err, threshold.ErrInvalidBounds)
}

func TestEvaluateTrustBonus(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal, WithTrust(trust.DefaultTable()))

	d, err := e.Evaluate(vote("validator_001", "proposal_abc", 1.0, start))
	require.NoError(t, err)
	assert.InDelta(t, 1.2, d.Weight, 1e-9)

	d, err = e.Evaluate(vote("outsider", "proposal_abc", 1.0, start))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Weight, 1e-9)
}

func TestEvaluateBLSVote(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal)

	kp, err := crypto.GenerateDeterministicBLSKeyPair([]byte("bls-voter"))
	require.NoError(t, err)

	v := crypto.NewSignedVote("bls-voter", "proposal_abc", 1.0, start, types.DecayExponential, kp)
	d, err := e.Evaluate(v)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Weight)
}

func TestWindowExtension(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.MaxExtensions = 1
	e, clock := newTestEngine(t, types.ProposalNormal, WithConfig(cfg))

	// 10 seconds left, weight above 90% of the 0.51 threshold of a fresh vote
	at := start.Add(290 * time.Second)
	clock.Set(at)
	d, err := e.Evaluate(vote("alice", "proposal_abc", 1.0, at))
	require.NoError(t, err)
	assert.True(t, d.Extended)
	assert.Equal(t, uint64(330), e.Window().DurationSecs)

	// Still within the extension lead, but the cap is reached
	at = start.Add(315 * time.Second)
	clock.Set(at)
	d, err = e.Evaluate(vote("bob", "proposal_abc", 1.0, at))
	require.NoError(t, err)
	assert.False(t, d.Extended)
	assert.Equal(t, uint64(330), e.Window().DurationSecs)
	assert.Equal(t, 1, e.Extensions())
	assert.Equal(t, uint64(1), e.GetMetrics().Extensions)
}

func TestNoExtensionForDistantMiss(t *testing.T) {
	e, clock := newTestEngine(t, types.ProposalNormal)

	at := start.Add(290 * time.Second)
	clock.Set(at)
	d, err := e.Evaluate(vote("alice", "proposal_abc", 0.4, at))
	require.NoError(t, err)
	assert.False(t, d.Extended)
	assert.Equal(t, uint64(300), e.Window().DurationSecs)
}

func TestSharedCacheAcrossProposals(t *testing.T) {
	cache := weight.NewCache(types.KeyByVoter)
	clock := &testClock{now: start}

	a, err := NewEngine(NewProposal("p1", types.ProposalNormal, start, window.Short, 10),
		WithCache(cache), WithClock(clock.Now))
	require.NoError(t, err)
	b, err := NewEngine(NewProposal("p2", types.ProposalNormal, start, window.Short, 10),
		WithCache(cache), WithClock(clock.Now))
	require.NoError(t, err)

	d1, err := a.Evaluate(vote("alice", "p1", 2.0, start))
	require.NoError(t, err)
	d2, err := b.Evaluate(vote("alice", "p2", 0.5, start))
	require.NoError(t, err)

	// Voter keyed memo: the first weight is reused for the second proposal
	assert.Equal(t, d1.Weight, d2.Weight)
	assert.Len(t, cache.History(), 1)
}

func TestSharedCachePolicyWins(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	cfg := types.DefaultConfig()
	cfg.CacheKeyPolicy = types.KeyByVoterProposal
	cache := weight.NewCache(types.KeyByVoter)
	clock := &testClock{now: start}

	a, err := NewEngine(NewProposal("p1", types.ProposalNormal, start, window.Short, 10),
		WithCache(cache), WithConfig(cfg), WithClock(clock.Now))
	require.NoError(t, err)
	b, err := NewEngine(NewProposal("p2", types.ProposalNormal, start, window.Short, 10),
		WithCache(cache), WithConfig(cfg), WithClock(clock.Now))
	require.NoError(t, err)

	assert.Equal(t, types.KeyByVoter, a.CachePolicy())
	assert.Contains(t, buf.String(), "ignoring configured voter_proposal")

	d1, err := a.Evaluate(vote("alice", "p1", 2.0, start))
	require.NoError(t, err)
	d2, err := b.Evaluate(vote("alice", "p2", 0.5, start))
	require.NoError(t, err)
	assert.Equal(t, d1.Weight, d2.Weight)
}

func TestSharedCacheMatchingPolicyIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	cache := weight.NewCache(types.KeyByVoterProposal)
	e, _ := newTestEngine(t, types.ProposalNormal, WithCache(cache))
	assert.Equal(t, types.KeyByVoterProposal, e.CachePolicy())
	assert.NotContains(t, buf.String(), "ignoring configured")
}

func TestVoterProposalKeying(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.CacheKeyPolicy = types.KeyByVoterProposal
	e, _ := newTestEngine(t, types.ProposalNormal, WithConfig(cfg))

	_, err := e.Evaluate(vote("alice", "proposal_abc", 2.0, start))
	require.NoError(t, err)
	d, err := e.Evaluate(vote("alice", "proposal_abc", 0.5, start))
	require.NoError(t, err)

	assert.Equal(t, 2.0, d.Weight)
	assert.Len(t, e.Weights(), 1)
}

func TestEvaluateBatch(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal)

	votes := []*types.SignedVote{
		vote("alice", "proposal_abc", 1.0, start),
		vote("bob", "proposal_other", 1.0, start),
		vote("carol", "proposal_abc", 1.0, start),
	}
	decisions, errs := e.EvaluateBatch(votes)
	require.Len(t, decisions, 3)
	require.Len(t, errs, 3)

	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], ErrProposalMismatch)
	assert.Nil(t, decisions[1])
	assert.NoError(t, errs[2])
	assert.Equal(t, "alice", decisions[0].VoterID)
	assert.Equal(t, "carol", decisions[2].VoterID)
	assert.Equal(t, uint64(2), decisions[2].TotalVotes)
}

func TestEvaluateArchives(t *testing.T) {
	archive, err := storage.NewArchive(storage.DefaultArchiveConfig(t.TempDir()))
	require.NoError(t, err)
	defer archive.Close()

	e, _ := newTestEngine(t, types.ProposalNormal, WithArchive(archive))

	d, err := e.Evaluate(vote("alice", "proposal_abc", 1.0, start))
	require.NoError(t, err)
	_, err = e.Evaluate(vote("alice", "proposal_abc", 1.0, start))
	require.NoError(t, err)
	_, err = e.Evaluate(vote("alice", "proposal_xyz", 1.0, start))
	require.Error(t, err)

	records, err := archive.RecordsForProposal("proposal_abc")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, d.ID, records[0].ID)

	// The second vote hit the memo, so only one weight entry was written
	entries, err := archive.WeightEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, uint64(0), e.GetMetrics().ArchiveErrors)
}

func TestArchiveFailureDoesNotFailDecision(t *testing.T) {
	archive, err := storage.NewArchive(storage.DefaultArchiveConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, archive.Close())

	e, _ := newTestEngine(t, types.ProposalNormal, WithArchive(archive))
	d, err := e.Evaluate(vote("alice", "proposal_abc", 1.0, start))
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, 1, e.History().Len())
	assert.Equal(t, uint64(2), e.GetMetrics().ArchiveErrors)
}

func TestConcurrentEvaluate(t *testing.T) {
	e, _ := newTestEngine(t, types.ProposalNormal)

	votes := make([]*types.SignedVote, 20)
	for i := range votes {
		votes[i] = vote(string(rune('a'+i))+"-voter", "proposal_abc", 1.0, start)
	}

	var wg sync.WaitGroup
	for _, v := range votes {
		wg.Add(1)
		go func(v *types.SignedVote) {
			defer wg.Done()
			_, err := e.Evaluate(v)
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	assert.Equal(t, uint64(20), e.Escalator().TotalVotes)
	assert.Equal(t, 20, e.History().Len())
	assert.Len(t, e.Weights(), 20)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrNilProposal)

	p := NewProposal("p", types.ProposalNormal, start, window.Short, 0)
	_, err = NewEngine(p, WithClock(nil))
	assert.Error(t, err)

	cfg := types.DefaultConfig()
	cfg.MaxExtensions = -1
	_, err = NewEngine(p, WithConfig(cfg))
	assert.Error(t, err)
}
