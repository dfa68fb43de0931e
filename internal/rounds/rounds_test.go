package rounds

import (
	"context"
	"testing"

	"storyguess/pkg/protocol"
)

func TestStaticSourceGenerate(t *testing.T) {
	src := NewStaticSource()

	round, err := src.Generate(context.Background(), "the Roman Republic")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(round.Subtopics) != 3 {
		t.Fatalf("subtopic count = %d, want 3", len(round.Subtopics))
	}
	for i, st := range round.Subtopics {
		if st.Name == "" || st.Narrative == "" || st.Misinformation == "" {
			t.Fatalf("subtopic %d incomplete: %+v", i, st)
		}
		if !Grade(st.Misinformation, st) {
			t.Fatalf("subtopic %d's own misinformation does not grade correct", i)
		}
	}
}

func TestStaticSourceRejectsEmptyTopic(t *testing.T) {
	if _, err := NewStaticSource().Generate(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestGrade(t *testing.T) {
	st := protocol.Subtopic{
		Misinformation: "it was banned worldwide for most of the twentieth century",
	}

	cases := []struct {
		name  string
		guess string
		want  bool
	}{
		{name: "exact", guess: "it was banned worldwide for most of the twentieth century", want: true},
		{name: "case and punctuation", guess: "It was BANNED worldwide, for most of the twentieth century!", want: true},
		{name: "small typo", guess: "it was baned worldwide for most of the twentieth century", want: true},
		{name: "paraphrase with overlap", guess: "the claim about it being banned worldwide during the twentieth century", want: true},
		{name: "substring of target", guess: "banned worldwide for most of the twentieth century", want: true},
		{name: "unrelated", guess: "the moon landing", want: false},
		{name: "too short a fragment", guess: "banned", want: false},
		{name: "empty", guess: "", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Grade(tc.guess, st); got != tc.want {
				t.Fatalf("Grade(%q) = %v, want %v", tc.guess, got, tc.want)
			}
		})
	}
}
