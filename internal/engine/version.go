package engine

// Version orders writes to one replicated field. Counters grow with every local
// change; Origin breaks ties between participants that wrote concurrently.
type Version struct {
	Counter uint64 `json:"counter"`
	Origin  string `json:"origin,omitempty"`
}

func (v Version) Next(origin string) Version {
	return Version{Counter: v.Counter + 1, Origin: origin}
}

// After reports whether v is strictly newer than other.
func (v Version) After(other Version) bool {
	if v.Counter != other.Counter {
		return v.Counter > other.Counter
	}
	return v.Origin > other.Origin
}

func (v Version) IsZero() bool {
	return v.Counter == 0 && v.Origin == ""
}
