package model

// VoiceContext is the ephemeral per-turn bundle of personalization data
// gathered before prompting the model. Built fresh every turn and
// discarded after the prompt is assembled; sources that failed to load
// are simply left empty.
type VoiceContext struct {
	Profile        *User
	Facts          []*Fact
	KnowledgeGraph string
	Memory         string
	Articles       []*Article
}
