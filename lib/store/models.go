package store

// Address is a watched address saved to the addresses table.
type Address struct {
	Net  string `json:"net"`
	Addr string `json:"addr"`
	Name string `json:"name,omitempty"`
}

// WatcherState is the scanning state of a network watcher: the last block scanned, the ring of recent block hashes
// with its index and the watched addresses.
type WatcherState struct {
	Block uint64          `json:"block"`
	Bh    []string        `json:"bh"`
	Bhi   int             `json:"bhi"`
	Map   map[string]bool `json:"map"`
}
