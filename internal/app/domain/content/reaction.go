package content

// Canonical reaction codes. Clients may submit either a code or one of the
// visual symbols below; everything else is rejected.
const (
	ReactionLike  = "like"
	ReactionLove  = "love"
	ReactionHaha  = "haha"
	ReactionWow   = "wow"
	ReactionSad   = "sad"
	ReactionAngry = "angry"
)

var reactionSymbols = map[string]string{
	"\U0001F44D": ReactionLike,  // 👍
	"❤️": ReactionLove, // ❤️
	"❤":    ReactionLove,
	"\U0001F602": ReactionHaha, // 😂
	"\U0001F62E": ReactionWow,  // 😮
	"\U0001F622": ReactionSad,  // 😢
	"\U0001F621": ReactionAngry, // 😡
}

var canonicalReactions = map[string]bool{
	ReactionLike:  true,
	ReactionLove:  true,
	ReactionHaha:  true,
	ReactionWow:   true,
	ReactionSad:   true,
	ReactionAngry: true,
}

// NormalizeReaction maps a raw reaction signal (canonical code or visual
// symbol) to its canonical code. ok is false for unknown signals.
func NormalizeReaction(raw string) (code string, ok bool) {
	if canonicalReactions[raw] {
		return raw, true
	}
	if code, found := reactionSymbols[raw]; found {
		return code, true
	}
	return "", false
}
