package rtdispatch

// Options size the runtime table.
type Options struct {
	FilterBits   int `msgpack:"filter_bits" json:"filter_bits" yaml:"filter_bits"`       // collision filter bits per family
	FilterHashes int `msgpack:"filter_hashes" json:"filter_hashes" yaml:"filter_hashes"` // hash functions per filter entry
	CacheSize    int `msgpack:"cache_size" json:"cache_size" yaml:"cache_size"`          // overflow cache entries; 0 disables it
	CacheShards  int `msgpack:"cache_shards" json:"cache_shards" yaml:"cache_shards"`
}

// DefaultOptions returns the starting parameters: k=3 over 2^16 bits.
func DefaultOptions() Options {
	return Options{
		FilterBits:   1 << 16,
		FilterHashes: 3,
		CacheSize:    4096,
		CacheShards:  16,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.FilterBits <= 0 {
		o.FilterBits = d.FilterBits
	}
	o.FilterBits = (o.FilterBits + 63) &^ 63
	if o.FilterHashes <= 0 {
		o.FilterHashes = d.FilterHashes
	}
	if o.CacheSize < 0 {
		o.CacheSize = 0
	}
	if o.CacheShards <= 0 {
		o.CacheShards = 1
	}
	return o
}
