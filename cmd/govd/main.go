// Package main is a command-line driver that signs and evaluates votes
// against a single proposal.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/buzzy-coder/time-decay-consensus/crypto"
	"github.com/buzzy-coder/time-decay-consensus/decay"
	"github.com/buzzy-coder/time-decay-consensus/governance"
	"github.com/buzzy-coder/time-decay-consensus/history"
	"github.com/buzzy-coder/time-decay-consensus/storage"
	"github.com/buzzy-coder/time-decay-consensus/trust"
	"github.com/buzzy-coder/time-decay-consensus/types"
	"github.com/buzzy-coder/time-decay-consensus/window"
)

func main() {
	voterID := flag.String("voter", "validator_001", "Voter identity")
	proposalID := flag.String("proposal", "proposal_abc", "Proposal identifier")
	originalWeight := flag.Float64("weight", 1.0, "Original vote weight")
	decayName := flag.String("decay", "linear", "Decay model: linear, exponential or stepped")
	proposalType := flag.String("type", "normal", "Proposal type: normal or critical")
	schemeName := flag.String("scheme", "ed25519", "Signature scheme: ed25519 or bls")
	ageSecs := flag.Int64("age", 0, "Vote age in seconds at evaluation time")
	coVoters := flag.Int("votes", 2, "Number of co-voters evaluated before the main vote")
	windowName := flag.String("window", "short", "Window length: short, medium or long")
	configPath := flag.String("config", "", "YAML config file (empty = defaults)")
	trustPath := flag.String("trust", "", "YAML trust table (empty = built-in table)")
	archiveDir := flag.String("archive", "", "Archive directory (empty = in-memory only)")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("   Time-Decay Weighted Governance Engine")
	fmt.Println("===========================================")
	fmt.Println()

	if err := run(opts{
		voterID:        *voterID,
		proposalID:     *proposalID,
		originalWeight: *originalWeight,
		decayName:      *decayName,
		proposalType:   *proposalType,
		schemeName:     *schemeName,
		ageSecs:        *ageSecs,
		coVoters:       *coVoters,
		windowName:     *windowName,
		configPath:     *configPath,
		trustPath:      *trustPath,
		archiveDir:     *archiveDir,
	}); err != nil {
		log.Fatal(err)
	}
}

type opts struct {
	voterID        string
	proposalID     string
	originalWeight float64
	decayName      string
	proposalType   string
	schemeName     string
	ageSecs        int64
	coVoters       int
	windowName     string
	configPath     string
	trustPath      string
	archiveDir     string
}

// run evaluates one vote and prints the outcome. The archive, if opened,
// is closed on every return path.
func run(o opts) error {
	config := types.DefaultConfig()
	if o.configPath != "" {
		var err error
		if config, err = types.LoadConfig(o.configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	table := trust.DefaultTable()
	if o.trustPath != "" {
		var err error
		if table, err = trust.LoadTable(o.trustPath); err != nil {
			return fmt.Errorf("failed to load trust table: %w", err)
		}
	}

	length, err := parseWindow(o.windowName)
	if err != nil {
		return err
	}

	scheme := types.ParseScheme(o.schemeName)
	kind := types.ParseDecayKind(o.decayName)
	ptype := types.ParseProposalType(o.proposalType)

	now := time.Now()
	proposal := governance.NewProposal(o.proposalID, ptype, now, length, config.GraceSecs)

	engineOpts := []governance.Option{
		governance.WithConfig(config),
		governance.WithTrust(table),
	}

	var archive *storage.Archive
	if o.archiveDir != "" {
		archive, err = storage.NewArchive(storage.DefaultArchiveConfig(o.archiveDir))
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()

		// Earlier runs inform the suggested base threshold
		past, err := archive.LoadAnalyzer()
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		engineOpts = append(engineOpts, governance.WithArchive(archive), governance.WithHistory(past))
	}

	engine, err := governance.NewEngine(proposal, engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	fmt.Printf("Proposal:      %s (%s)\n", o.proposalID, ptype)
	fmt.Printf("Window:        %ds + %ds grace\n", length.Seconds(), config.GraceSecs)
	fmt.Printf("Threshold:     escalates from %s\n", config.ThresholdStart)
	fmt.Printf("Scheme:        %s\n", scheme)
	fmt.Printf("Decay:         %s\n", kind)
	fmt.Printf("Trust table:   %d validators\n", table.Len())
	if archive != nil {
		fmt.Printf("Archive:       %s\n", archive.Path())
	} else {
		fmt.Printf("Archive:       (in-memory)\n")
	}
	fmt.Println()

	for i := 0; i < o.coVoters; i++ {
		id := fmt.Sprintf("co_voter_%03d", i+1)
		signer, err := newSigner(scheme)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		v := crypto.NewSignedVote(id, o.proposalID, 1.0, now, types.DecayLinear, signer)
		if _, err := engine.Evaluate(v); err != nil {
			log.Printf("Co-voter %s rejected: %v", id, err)
		}
	}

	signer, err := newSigner(scheme)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	ts := now.Add(-time.Duration(o.ageSecs) * time.Second)
	vote := crypto.NewSignedVote(o.voterID, o.proposalID, o.originalWeight, ts, kind, signer)

	fmt.Printf("Voter:         %s\n", vote.VoterID)
	fmt.Printf("Public Key:    %s\n", vote.PublicKeyHex())
	fmt.Printf("Weight:        %.4f (age %ds)\n", vote.OriginalWeight, o.ageSecs)
	fmt.Println()

	decision, err := engine.Evaluate(vote)
	if err != nil {
		return fmt.Errorf("vote rejected: %w", err)
	}

	printDecision(decision, decay.ForKind(kind), vote.OriginalWeight)
	printHistory(engine.History())
	return nil
}

func newSigner(scheme types.Scheme) (crypto.Signer, error) {
	if scheme == types.SchemeBLS {
		return crypto.GenerateBLSKeyPair()
	}
	return crypto.GenerateEd25519KeyPair()
}

func parseWindow(name string) (window.Kind, error) {
	switch name {
	case "short":
		return window.Short, nil
	case "medium":
		return window.Medium, nil
	case "long":
		return window.Long, nil
	default:
		return window.Kind{}, fmt.Errorf("invalid window: %s (use short, medium or long)", name)
	}
}

func printDecision(d *governance.Decision, model decay.Model, original float64) {
	outcome := "FAILED"
	if d.Passed {
		outcome = "PASSED"
	}

	fmt.Println("=== Decision ===")
	fmt.Printf("ID:            %s\n", d.ID)
	fmt.Printf("Outcome:       %s\n", outcome)
	fmt.Printf("Weight:        %.4f\n", d.Weight)
	fmt.Printf("Threshold:     %.4f\n", d.Threshold)
	fmt.Printf("Margin:        %+.4f\n", d.Margin())
	fmt.Printf("Participation: %d\n", d.TotalVotes)
	fmt.Printf("Extended:      %v\n", d.Extended)
	if ttf := model.TimeToFloor(original); !math.IsInf(ttf, 1) {
		fmt.Printf("Time to floor: %.0fs\n", ttf)
	}
	if hl := model.HalfLife(original); !math.IsInf(hl, 1) {
		fmt.Printf("Half-life:     %.0fs\n", hl)
	}
	fmt.Println()
}

func printHistory(an *history.Analyzer) {
	stats := an.Stats()
	fmt.Println("=== History ===")
	fmt.Printf("Records:       %d (%d passed, %d failed)\n", stats.Total, stats.Passed, stats.Failed)
	fmt.Printf("Pass rate:     %.2f\n", stats.PassRate)
	fmt.Printf("Avg margin:    %+.4f\n", stats.AverageMargin)
	fmt.Printf("Suggested base threshold: %.2f\n", stats.Suggested)
}
