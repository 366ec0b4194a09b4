package models

// StringSet is a member/reader/reactor set stored as a JSON array. All
// mutations are commutative and idempotent, so concurrent read-modify-write
// cycles on the same document converge regardless of interleaving.
type StringSet []string

func (s StringSet) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// Add returns the set with v present exactly once.
func (s StringSet) Add(v string) StringSet {
	if s.Contains(v) {
		return s
	}
	return append(s, v)
}

// Remove returns the set without v. Removing an absent element is a no-op.
func (s StringSet) Remove(v string) StringSet {
	out := s[:0:0]
	for _, item := range s {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

func (s StringSet) Union(other StringSet) StringSet {
	out := s
	for _, v := range other {
		out = out.Add(v)
	}
	return out
}

// ReactionMap maps an emoji to the set of users who reacted with it. Empty
// sets are never persisted: removing the last reactor drops the emoji key.
type ReactionMap map[string]StringSet

func (r ReactionMap) Add(emoji, userID string) ReactionMap {
	if r == nil {
		r = ReactionMap{}
	}
	r[emoji] = r[emoji].Add(userID)
	return r
}

func (r ReactionMap) Remove(emoji, userID string) ReactionMap {
	if r == nil {
		return r
	}
	reactors, ok := r[emoji]
	if !ok {
		return r
	}
	reactors = reactors.Remove(userID)
	if len(reactors) == 0 {
		delete(r, emoji)
	} else {
		r[emoji] = reactors
	}
	return r
}
