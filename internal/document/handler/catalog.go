package handler

import "strings"

// ResourceCatalog supplies resource metadata that a route cannot carry.
type ResourceCatalog interface {
	IsDescriptor(project, resource string) bool
}

// DescriptorSet is a ResourceCatalog over a fixed list of descriptor
// resource names, matched case-insensitively in any project.
type DescriptorSet map[string]struct{}

func NewDescriptorSet(names ...string) DescriptorSet {
	s := make(DescriptorSet, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[strings.ToLower(n)] = struct{}{}
		}
	}
	return s
}

func (s DescriptorSet) IsDescriptor(_, resource string) bool {
	_, ok := s[strings.ToLower(resource)]
	return ok
}
