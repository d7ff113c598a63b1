package models

// Reaction groups the users that reacted to a message with one emoji.
// Count always equals len(Users).
type Reaction struct {
	Emoji string   `bson:"emoji" json:"emoji"`
	Users []string `bson:"users" json:"users"`
	Count int      `bson:"count" json:"count"`
}

// AllowedReactions is the fixed reaction palette offered by the clients.
var AllowedReactions = []string{"👍", "👎", "❤️", "😂", "😮", "😢", "😡", "🙏", "🔥", "🎉"}

var allowedReactionSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(AllowedReactions))
	for _, e := range AllowedReactions {
		set[e] = struct{}{}
	}
	return set
}()

func IsAllowedReaction(emoji string) bool {
	_, ok := allowedReactionSet[emoji]
	return ok
}

// AddReaction returns a new reaction list with userID added under emoji.
// Re-adding is a no-op and reports changed=false.
func AddReaction(reactions []Reaction, emoji, userID string) ([]Reaction, bool) {
	out := cloneReactions(reactions)
	for i := range out {
		if out[i].Emoji != emoji {
			continue
		}
		if contains(out[i].Users, userID) {
			return out, false
		}
		out[i].Users = append(out[i].Users, userID)
		out[i].Count = len(out[i].Users)
		return out, true
	}
	return append(out, Reaction{Emoji: emoji, Users: []string{userID}, Count: 1}), true
}

// RemoveReaction returns a new reaction list without userID under emoji.
// Entries left with no users are dropped.
func RemoveReaction(reactions []Reaction, emoji, userID string) ([]Reaction, bool) {
	out := cloneReactions(reactions)
	for i := range out {
		if out[i].Emoji != emoji {
			continue
		}
		users := out[i].Users[:0]
		removed := false
		for _, u := range out[i].Users {
			if u == userID {
				removed = true
				continue
			}
			users = append(users, u)
		}
		if !removed {
			return out, false
		}
		if len(users) == 0 {
			return append(out[:i], out[i+1:]...), true
		}
		out[i].Users = users
		out[i].Count = len(users)
		return out, true
	}
	return out, false
}

// NormalizeReactions recomputes counts and drops empty entries.
func NormalizeReactions(reactions []Reaction) []Reaction {
	out := make([]Reaction, 0, len(reactions))
	for _, r := range cloneReactions(reactions) {
		r.Users = NormalizeMembers(r.Users)
		if len(r.Users) == 0 {
			continue
		}
		r.Count = len(r.Users)
		out = append(out, r)
	}
	return out
}

func cloneReactions(reactions []Reaction) []Reaction {
	out := make([]Reaction, len(reactions))
	for i, r := range reactions {
		out[i] = Reaction{Emoji: r.Emoji, Users: append([]string(nil), r.Users...), Count: len(r.Users)}
	}
	return out
}
