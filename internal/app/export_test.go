package app

// SetLimits shrinks the snapshot and completed-match retention of r.
func (r *ResilientStore) SetLimits(snapshots, completed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshotLimit = snapshots
	r.retainCompleted = completed
}
