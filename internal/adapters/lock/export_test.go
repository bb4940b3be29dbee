package lock

// SetProcessProbe replaces the liveness probe.
func (l *Dir) SetProcessProbe(alive func(pid int) bool) {
	l.alive = alive
}

// OwnerString exposes the lock file content format.
func OwnerString(pid int, hostname string) string {
	return ownerString(pid, hostname)
}
