package demux

import "github.com/hupe1980/captain/core"

// classifyToken converts the content blocks of a token item into answer and
// reasoning events. Answer text is only taken from answerNode; reasoning is
// taken from any node. Unknown block types are dropped.
func classifyToken(attr Attribution, tok *core.TokenChunk, answerNode string) []core.Event {
	if tok == nil || tok.Metadata == nil || len(tok.Blocks) == 0 {
		return nil
	}
	var events []core.Event
	for _, b := range tok.Blocks {
		switch b.Type {
		case core.BlockText:
			if tok.Metadata.Node != answerNode {
				continue
			}
			if attr.SubAgent {
				events = append(events, core.NewSubAgentAnswerEvent(attr.Name, b.Text))
			} else {
				events = append(events, core.NewModelAnswerEvent(b.Text))
			}
		case core.BlockReasoning:
			if attr.SubAgent {
				events = append(events, core.NewSubAgentThinkingEvent(attr.Name, b.Reasoning))
			} else {
				events = append(events, core.NewModelThinkingEvent(b.Reasoning))
			}
		}
	}
	return events
}
