package policy

import (
	"strings"
	"testing"
)

func TestRules_Acyclic(t *testing.T) {
	if err := Rules().Validate(); err != nil {
		t.Fatalf("default rule graph has a cycle: %v", err)
	}
}

func TestGraph_Validate(t *testing.T) {
	tests := []struct {
		name      string
		build     func(g *Graph)
		wantCycle string
	}{
		{
			name: "empty",
			build: func(g *Graph) {
			},
		},
		{
			name: "chain",
			build: func(g *Graph) {
				g.Add(KindResource, KindWorkspace)
				g.Add(KindWorkspace, KindFacts)
			},
		},
		{
			name: "diamond",
			build: func(g *Graph) {
				g.Add(KindResource, KindWorkspace, KindMembership)
				g.Add(KindWorkspace, KindFacts)
				g.Add(KindMembership, KindFacts)
			},
		},
		{
			// workspace visibility consulting gated membership visibility,
			// which consults workspace visibility again
			name: "workspace membership cycle",
			build: func(g *Graph) {
				g.Add(KindWorkspace, KindMembership)
				g.Add(KindMembership, KindWorkspace)
			},
			wantCycle: "membership -> workspace -> membership",
		},
		{
			name: "self reference",
			build: func(g *Graph) {
				g.Add(KindMembership, KindMembership)
			},
			wantCycle: "membership -> membership",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			tt.build(g)

			err := g.Validate()
			if tt.wantCycle == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want cycle error")
			}
			if !strings.Contains(err.Error(), tt.wantCycle) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantCycle)
			}
		})
	}
}
