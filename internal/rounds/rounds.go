// Package rounds supplies round content and grades answers against it. The
// upstream generator is an opaque service behind the Source interface; the
// in-repo implementation produces canned narratives so a lobby is playable
// without any external dependency.
package rounds

import (
	"context"
	"fmt"

	"storyguess/pkg/protocol"
)

// Source produces a round for a topic. Generation may be slow; callers run it
// off the request path and deliver the result over the streaming channel.
type Source interface {
	Generate(ctx context.Context, topic string) (protocol.Round, error)
}

// StaticSource builds rounds from fixed templates.
type StaticSource struct {
	// SubtopicCount caps the round length. Defaults to 3.
	SubtopicCount int
}

func NewStaticSource() *StaticSource {
	return &StaticSource{SubtopicCount: 3}
}

var falseFacts = []string{
	"it was first written down less than ten years ago",
	"every early account of it was produced by a single anonymous author",
	"no surviving record of it predates the invention of photography",
	"it was banned worldwide for most of the twentieth century",
	"all primary sources about it were lost in a single fire",
}

func (s *StaticSource) Generate(ctx context.Context, topic string) (protocol.Round, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Round{}, err
	}
	if topic == "" {
		return protocol.Round{}, fmt.Errorf("generate: empty topic")
	}

	count := s.SubtopicCount
	if count <= 0 {
		count = 3
	}
	if count > len(falseFacts) {
		count = len(falseFacts)
	}

	round := protocol.Round{}
	for i := 0; i < count; i++ {
		lie := falseFacts[i]
		round.Subtopics = append(round.Subtopics, protocol.Subtopic{
			Name:           fmt.Sprintf("%s, part %d", topic, i+1),
			Narrative:      fmt.Sprintf("Consider what is known about %s. Scholars broadly agree on its origins and spread, and most claims below reflect the accepted record. One claim does not: %s. Find the claim that is false.", topic, lie),
			Misinformation: lie,
		})
	}
	return round, nil
}
