package agent

// joinBranch composes the dot-joined branch path that isolates a child's
// writes from its siblings. An empty parent yields the child segment alone.
func joinBranch(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}
