// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propagation

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/bureau-foundation/raptorcast/lib/broadcasttree"
	"github.com/bureau-foundation/raptorcast/lib/participant"
)

// sequence returns its values in order, then repeats the last one.
type sequence struct {
	values []float64
	next   int
}

func (s *sequence) Float64() float64 {
	value := s.values[min(s.next, len(s.values)-1)]
	s.next++
	return value
}

func factor(f float64) *float64 { return &f }

func TestScoreReplicationFactor(t *testing.T) {
	tests := []struct {
		name          string
		generated     int
		sent          int
		want          float64
		wantEvolution bool
	}{
		{"fixture clamps to one", 45, 63, 1, true},
		{"exactly threshold", 10, 8, 0.8, false},
		{"just above threshold", 100, 81, 0.81, true},
		{"below threshold", 45, 30, 30.0 / 45.0, false},
		{"nothing sent", 45, 0, 0, false},
		{"nothing generated", 0, 5, 0, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			score := Scorer{}.Score(test.generated, test.sent, &sequence{values: []float64{0.5}})
			if score.ReplicationFactor != test.want {
				t.Errorf("ReplicationFactor = %v, want %v", score.ReplicationFactor, test.want)
			}
			if (score.EvolutionFactor != nil) != test.wantEvolution {
				t.Errorf("EvolutionFactor present = %v, want %v", score.EvolutionFactor != nil, test.wantEvolution)
			}
		})
	}
}

func TestScoreDrawsSpeedThenEvolution(t *testing.T) {
	score := Scorer{}.Score(10, 10, &sequence{values: []float64{0.25, 0.5}})
	if score.PropagationSpeed != 225 {
		t.Errorf("PropagationSpeed = %v, want 225", score.PropagationSpeed)
	}
	if score.EvolutionFactor == nil || *score.EvolutionFactor != 0.2 {
		t.Errorf("EvolutionFactor = %v, want 0.2", score.EvolutionFactor)
	}
}

func TestScoreBounds(t *testing.T) {
	random := NewRandomSource(42, "msg-bounds")
	for range 1000 {
		score := Scorer{}.Score(10, 10, random)
		if score.PropagationSpeed < 100 || score.PropagationSpeed >= 600 {
			t.Fatalf("PropagationSpeed %v outside [100, 600)", score.PropagationSpeed)
		}
		if f := *score.EvolutionFactor; f < 0.1 || f >= 0.3 {
			t.Fatalf("EvolutionFactor %v outside [0.1, 0.3)", f)
		}
	}
}

func TestRandomSourceIsReproducible(t *testing.T) {
	first := Scorer{}.Score(45, 69, NewRandomSource(7, "msg-a"))
	second := Scorer{}.Score(45, 69, NewRandomSource(7, "msg-a"))
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same seed and message produced %+v and %+v", first, second)
	}
	other := Scorer{}.Score(45, 69, NewRandomSource(7, "msg-b"))
	if other.PropagationSpeed == first.PropagationSpeed {
		t.Error("different messages drew the same speed")
	}
}

func TestScorerCustomThreshold(t *testing.T) {
	scorer := Scorer{EvolutionThreshold: 0.5}
	if err := scorer.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	score := scorer.Score(10, 6, &sequence{values: []float64{0}})
	if score.EvolutionFactor == nil {
		t.Error("0.6 replication did not evolve with threshold 0.5")
	}
	if err := (Scorer{EvolutionThreshold: 1.5}).Validate(); err == nil {
		t.Error("Validate accepted threshold 1.5")
	}
}

func TestEvolvedQuality(t *testing.T) {
	tests := []struct {
		quality int
		factor  float64
		want    int
	}{
		{50, 0.2, 60},
		{95, 0.3, 100},
		{0, 0.3, 0},
		{100, 0.1, 100},
		{33, 0.1, 36},
	}
	for _, test := range tests {
		if got := EvolvedQuality(test.quality, test.factor); got != test.want {
			t.Errorf("EvolvedQuality(%d, %v) = %d, want %d", test.quality, test.factor, got, test.want)
		}
	}
}

func TestEvolve(t *testing.T) {
	original := Artifact{
		ID:         "card-7",
		Name:       "Ember Drake",
		Quality:    50,
		Attributes: map[string]string{"rarity": "rare"},
	}
	score := Score{PropagationSpeed: 321.5, ReplicationFactor: 1, EvolutionFactor: factor(0.2)}

	derived := Evolve(original, score, "msg-0123456789abcdef")
	if derived == nil {
		t.Fatal("Evolve returned nil for a score with an evolution factor")
	}
	if derived.ID != "card-7-evolved-01234567" {
		t.Errorf("ID = %q", derived.ID)
	}
	if derived.ParentID != "card-7" || derived.Generation != 1 || derived.Quality != 60 {
		t.Errorf("derived = %+v", derived)
	}
	wantAttributes := map[string]string{
		"rarity":                   "rare",
		AttributePropagationSpeed:  "321.50",
		AttributeReplicationFactor: "1.0000",
		AttributeEvolutionFactor:   "0.2000",
		AttributeSourceMessage:     "msg-0123456789abcdef",
	}
	if !reflect.DeepEqual(derived.Attributes, wantAttributes) {
		t.Errorf("Attributes = %v, want %v", derived.Attributes, wantAttributes)
	}
	if len(original.Attributes) != 1 {
		t.Error("Evolve modified the original's attributes")
	}
}

func TestEvolveWithoutFactor(t *testing.T) {
	derived := Evolve(Artifact{ID: "card-1", Quality: 40}, Score{ReplicationFactor: 0.8}, "msg-x")
	if derived != nil {
		t.Errorf("Evolve = %+v, want nil", derived)
	}
}

func TestArtifactValidate(t *testing.T) {
	for _, artifact := range []Artifact{{ID: "", Quality: 10}, {ID: "a", Quality: -1}, {ID: "a", Quality: 101}} {
		if err := artifact.Validate(); err == nil {
			t.Errorf("Validate(%+v) succeeded", artifact)
		}
	}
	if err := (Artifact{ID: "a", Quality: 100}).Validate(); err != nil {
		t.Errorf("Validate rejected quality 100: %v", err)
	}
}

func TestNewRecordNodeOrders(t *testing.T) {
	nodes := make([]participant.Node, 8)
	for i := range nodes {
		nodes[i] = participant.Node{ID: fmt.Sprintf("n%d", i), Weight: float64(8 - i), Online: true, Order: i}
	}
	tree, err := broadcasttree.Builder{Fanout: 3}.Build("msg-r", 12, nodes)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	record := NewRecord(BroadcastResult{MessageID: "msg-r"}, Artifact{ID: "a"}, tree, Score{ReplicationFactor: 0.5})

	// Level 1: n0 n1 n2. Level 2 dealt round-robin: n3, n6 under n0;
	// n4, n7 under n1; n5 under n2.
	wantReceiving := []string{"n0", "n1", "n2", "n3", "n6", "n4", "n7", "n5"}
	if !reflect.DeepEqual(record.ReceivingNodes, wantReceiving) {
		t.Errorf("ReceivingNodes = %v, want %v", record.ReceivingNodes, wantReceiving)
	}
	wantPath := []string{broadcasttree.OriginatorID, "n0", "n3"}
	if !reflect.DeepEqual(record.PropagationPath, wantPath) {
		t.Errorf("PropagationPath = %v, want %v", record.PropagationPath, wantPath)
	}
	if record.Score().ReplicationFactor != 0.5 {
		t.Errorf("Score() = %+v", record.Score())
	}
}
