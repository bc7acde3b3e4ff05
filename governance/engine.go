// Package governance runs the per-vote decision pipeline for one proposal:
// authenticate, weigh, compute the threshold, decide, then record.
package governance

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buzzy-coder/time-decay-consensus/crypto"
	"github.com/buzzy-coder/time-decay-consensus/history"
	"github.com/buzzy-coder/time-decay-consensus/storage"
	"github.com/buzzy-coder/time-decay-consensus/threshold"
	"github.com/buzzy-coder/time-decay-consensus/trust"
	"github.com/buzzy-coder/time-decay-consensus/types"
	"github.com/buzzy-coder/time-decay-consensus/weight"
	"github.com/buzzy-coder/time-decay-consensus/window"
)

var (
	// ErrWindowClosed is returned for votes arriving after the voting period
	ErrWindowClosed = errors.New("voting window closed")

	// ErrProposalMismatch is returned for votes signed for another proposal
	ErrProposalMismatch = errors.New("vote is for a different proposal")

	// ErrNilProposal is returned by NewEngine when no proposal is given
	ErrNilProposal = errors.New("proposal is nil")
)

// Proposal is the subject of a vote
type Proposal struct {
	ID     string
	Type   types.ProposalType
	Window *window.Window
}

// NewProposal creates a proposal whose window opens at start
func NewProposal(id string, kind types.ProposalType, start time.Time, length window.Kind, graceSecs uint64) *Proposal {
	return &Proposal{
		ID:     id,
		Type:   kind,
		Window: window.New(start, length, graceSecs),
	}
}

// Decision is the outcome of evaluating one vote
type Decision struct {
	ID         string
	VoterID    string
	ProposalID string
	Weight     float64
	Threshold  float64
	Passed     bool
	Extended   bool
	TotalVotes uint64
	At         time.Time
}

// Margin returns how far the weight cleared (or missed) the threshold
func (d *Decision) Margin() float64 {
	return d.Weight - d.Threshold
}

// Record converts the decision into its audit record
func (d *Decision) Record() types.VoteRecord {
	return types.VoteRecord{
		ID:         d.ID,
		VoteID:     d.VoterID,
		ProposalID: d.ProposalID,
		Weight:     d.Weight,
		Threshold:  d.Threshold,
		Passed:     d.Passed,
		Timestamp:  d.At,
	}
}

// Metrics tracks pipeline counters
type Metrics struct {
	Evaluated     uint64
	Passed        uint64
	Failed        uint64
	Rejected      uint64
	Extensions    uint64
	ArchiveErrors uint64
}

// Engine evaluates votes for a single proposal
type Engine struct {
	mu sync.Mutex

	proposal  *Proposal
	config    types.Config
	escalator threshold.Escalator
	trust     *trust.Table
	cache     *weight.Cache
	history   *history.Analyzer
	archive   *storage.Archive
	clock     func() time.Time

	configured bool
	voters     map[string]struct{}
	extensions int
	metrics    Metrics
}

// Option is a functional option for configuring an Engine
type Option func(*Engine) error

// WithTrust sets the trust table. Without one every bonus is 1.0.
func WithTrust(table *trust.Table) Option {
	return func(e *Engine) error {
		e.trust = table
		return nil
	}
}

// WithCache shares a weight cache between engines. The cache's own key
// policy wins over Config.CacheKeyPolicy.
func WithCache(cache *weight.Cache) Option {
	return func(e *Engine) error {
		if cache == nil {
			return errors.New("nil weight cache")
		}
		e.cache = cache
		return nil
	}
}

// WithHistory shares a history analyzer between engines
func WithHistory(an *history.Analyzer) Option {
	return func(e *Engine) error {
		if an == nil {
			return errors.New("nil history analyzer")
		}
		e.history = an
		return nil
	}
}

// WithArchive persists every decision and new weight entry
func WithArchive(a *storage.Archive) Option {
	return func(e *Engine) error {
		e.archive = a
		return nil
	}
}

// WithClock replaces time.Now
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock == nil {
			return errors.New("nil clock")
		}
		e.clock = clock
		return nil
	}
}

// WithConfig sets the runtime configuration
func WithConfig(cfg types.Config) Option {
	return func(e *Engine) error {
		if cfg.MaxVoteAgeSecs < 0 || cfg.MaxExtensions < 0 {
			return fmt.Errorf("invalid config: max age %d, max extensions %d",
				cfg.MaxVoteAgeSecs, cfg.MaxExtensions)
		}
		e.config = cfg
		e.configured = true
		return nil
	}
}

// WithEscalator replaces the proposal type's preset escalator
func WithEscalator(esc threshold.Escalator) Option {
	return func(e *Engine) error {
		if err := esc.Validate(); err != nil {
			return err
		}
		e.escalator = esc
		return nil
	}
}

// NewEngine creates an engine for proposal. Defaults: DefaultConfig, the
// proposal type's escalator preset, no trust table, a private cache keyed
// by the configured policy and a private history analyzer.
func NewEngine(proposal *Proposal, opts ...Option) (*Engine, error) {
	if proposal == nil || proposal.Window == nil {
		return nil, ErrNilProposal
	}

	e := &Engine{
		proposal:  proposal,
		config:    types.DefaultConfig(),
		escalator: threshold.ForProposalType(proposal.Type),
		clock:     time.Now,
		voters:    make(map[string]struct{}),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.cache == nil {
		e.cache = weight.NewCache(e.config.CacheKeyPolicy)
	} else if e.configured && e.config.CacheKeyPolicy != "" && e.config.CacheKeyPolicy != e.cache.Policy() {
		log.Printf("[Governance] %s: shared cache keys by %s, ignoring configured %s",
			proposal.ID, e.cache.Policy(), e.config.CacheKeyPolicy)
	}
	if e.history == nil {
		e.history = history.NewAnalyzer()
	}

	return e, nil
}

// Evaluate runs one vote through the pipeline. A vote that fails any gate
// returns an error and leaves no trace in the cache, history or archive.
func (e *Engine) Evaluate(vote *types.SignedVote) (*Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()

	if err := e.admit(vote, now); err != nil {
		e.metrics.Rejected++
		log.Printf("[Governance] rejected vote for %s: %v", e.proposal.ID, err)
		return nil, err
	}

	if _, seen := e.voters[vote.VoterID]; !seen {
		e.voters[vote.VoterID] = struct{}{}
		e.escalator.TotalVotes++
	}

	w, entry := weight.Resolve(e.cache, vote, now, e.trust)
	required := e.escalator.ThresholdWithProfile(now, e.thresholdStart(vote))
	passed := e.escalator.IsThresholdMet(w, required)

	extended := false
	if e.extensions < e.config.MaxExtensions && e.proposal.Window.ShouldExtend(now, w, required) {
		e.proposal.Window.Extend(e.config.ExtensionSecs)
		e.extensions++
		e.metrics.Extensions++
		extended = true
		log.Printf("[Governance] extended %s by %ds (%d/%d)",
			e.proposal.ID, e.config.ExtensionSecs, e.extensions, e.config.MaxExtensions)
	}

	d := &Decision{
		ID:         uuid.NewString(),
		VoterID:    vote.VoterID,
		ProposalID: vote.ProposalID,
		Weight:     w,
		Threshold:  required,
		Passed:     passed,
		Extended:   extended,
		TotalVotes: e.escalator.TotalVotes,
		At:         now,
	}

	e.metrics.Evaluated++
	if passed {
		e.metrics.Passed++
	} else {
		e.metrics.Failed++
	}

	record := d.Record()
	e.history.RecordVote(record)
	e.persist(record, entry)

	return d, nil
}

// thresholdStart returns the instant escalation is measured from
func (e *Engine) thresholdStart(vote *types.SignedVote) time.Time {
	if e.config.ThresholdStart == types.ThresholdFromWindow {
		return e.proposal.Window.StartTime
	}
	return vote.Timestamp
}

// CachePolicy returns the key policy of the weight cache in use
func (e *Engine) CachePolicy() types.CacheKeyPolicy {
	return e.cache.Policy()
}

// admit applies the window, proposal and authentication gates in that order
func (e *Engine) admit(vote *types.SignedVote, now time.Time) error {
	if !e.proposal.Window.IsOpen(now) {
		return ErrWindowClosed
	}
	if vote == nil {
		return crypto.ErrInvalidSignature
	}
	if vote.ProposalID != e.proposal.ID {
		return fmt.Errorf("%w: got %q, want %q", ErrProposalMismatch, vote.ProposalID, e.proposal.ID)
	}
	return crypto.VerifyAt(vote, e.config.MaxVoteAgeSecs, now)
}

// persist writes to the archive, if any. Archive failures are logged and
// counted; the decision already stands.
func (e *Engine) persist(record types.VoteRecord, entry *types.WeightEntry) {
	if e.archive == nil {
		return
	}
	if entry != nil {
		if err := e.archive.AppendWeight(*entry); err != nil {
			e.metrics.ArchiveErrors++
			log.Printf("[Governance] archive weight entry for %s: %v", entry.VoteID, err)
		}
	}
	if err := e.archive.AppendRecord(record); err != nil {
		e.metrics.ArchiveErrors++
		log.Printf("[Governance] archive record %s: %v", record.ID, err)
	}
}

// EvaluateBatch evaluates votes in order. decisions[i] is nil exactly when
// errs[i] is non-nil.
func (e *Engine) EvaluateBatch(votes []*types.SignedVote) ([]*Decision, []error) {
	decisions := make([]*Decision, len(votes))
	errs := make([]error, len(votes))
	for i, v := range votes {
		decisions[i], errs[i] = e.Evaluate(v)
	}
	return decisions, errs
}

// ProposalID returns the proposal ID
func (e *Engine) ProposalID() string {
	return e.proposal.ID
}

// Escalator returns a snapshot of the escalator, including participation
func (e *Engine) Escalator() threshold.Escalator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.escalator
}

// Window returns a snapshot of the voting window
func (e *Engine) Window() window.Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.proposal.Window
}

// Extensions returns how many times the window has been extended
func (e *Engine) Extensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extensions
}

// History returns the analyzer receiving this engine's records
func (e *Engine) History() *history.Analyzer {
	return e.history
}

// Weights returns the weight history of the engine's cache
func (e *Engine) Weights() []types.WeightEntry {
	return e.cache.History()
}

// Config returns the runtime configuration
func (e *Engine) Config() types.Config {
	return e.config
}

// GetMetrics returns a copy of the pipeline counters
func (e *Engine) GetMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}
