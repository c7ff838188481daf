package transcript

// Turn pairs one assistant utterance with the user replies that follow it.
// It is a derived view over the flat item log; the log itself is never
// mutated to represent pairing.
type Turn struct {
	// Assistant is nil for replies that precede the first assistant
	// utterance.
	Assistant *Item
	Replies   []Item
}

// Turns derives the turn pairing from a flat item snapshot. Breadcrumbs and
// hidden items are excluded; they are not part of the spoken exchange.
func Turns(items []Item) []Turn {
	var out []Turn
	current := -1
	for _, it := range items {
		if it.Kind != KindMessage || it.Hidden {
			continue
		}
		switch it.Role {
		case RoleAssistant:
			copied := it
			out = append(out, Turn{Assistant: &copied})
			current = len(out) - 1
		case RoleUser:
			if current < 0 {
				if len(out) == 0 {
					out = append(out, Turn{})
				}
				out[0].Replies = append(out[0].Replies, it)
				continue
			}
			out[current].Replies = append(out[current].Replies, it)
		}
	}
	return out
}
