package session

// AttrChange is a single pending attribute change: either a new value or a
// tombstone marking the attribute for removal.
type AttrChange struct {
	Value   []byte
	Removed bool
}

// Delta is the set of changes accumulated on a session since its last
// successful persist. Stores that support partial updates receive it from
// Repository.Save and touch only the listed fields.
type Delta struct {
	attrs map[string]AttrChange

	lastAccessedChanged bool
	intervalChanged     bool
}

// Attrs returns the pending attribute changes keyed by attribute name.
func (d *Delta) Attrs() map[string]AttrChange { return d.attrs }

// LastAccessedChanged reports whether the last-accessed timestamp changed.
// Stores can refresh the timestamp field (and TTL) without rewriting
// attributes when this is the only change.
func (d *Delta) LastAccessedChanged() bool { return d.lastAccessedChanged }

// IntervalChanged reports whether the max-inactive interval changed.
func (d *Delta) IntervalChanged() bool { return d.intervalChanged }

// Empty reports whether the delta carries no changes at all.
func (d *Delta) Empty() bool {
	return len(d.attrs) == 0 && !d.lastAccessedChanged && !d.intervalChanged
}

func (d *Delta) set(name string, value []byte) {
	if d.attrs == nil {
		d.attrs = make(map[string]AttrChange)
	}
	d.attrs[name] = AttrChange{Value: value}
}

func (d *Delta) remove(name string) {
	if d.attrs == nil {
		d.attrs = make(map[string]AttrChange)
	}
	d.attrs[name] = AttrChange{Removed: true}
}

// reset clears the delta. Called only after a successful persist.
func (d *Delta) reset() {
	d.attrs = nil
	d.lastAccessedChanged = false
	d.intervalChanged = false
}
