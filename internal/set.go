package internal

// StringSet keeps insertion order so target lists stay in the order they
// were published.
type StringSet struct {
	m     map[string]struct{}
	order []string
}

func NewStringSet() *StringSet {
	return &StringSet{
		m: make(map[string]struct{}),
	}
}

// Add reports whether item was new.
func (s *StringSet) Add(item string) bool {
	if _, exists := s.m[item]; exists {
		return false
	}
	s.m[item] = struct{}{}
	s.order = append(s.order, item)
	return true
}

func (s *StringSet) Remove(item string) {
	if _, exists := s.m[item]; !exists {
		return
	}
	delete(s.m, item)
	for i, v := range s.order {
		if v == item {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *StringSet) Contains(item string) bool {
	_, exists := s.m[item]
	return exists
}

func (s *StringSet) Len() int {
	return len(s.m)
}

func (s *StringSet) Elements() []string {
	elements := make([]string, len(s.order))
	copy(elements, s.order)
	return elements
}
