package domain

// CacheStats is a read-only view of the result cache.
type CacheStats struct {
	TotalEntries int               `json:"totalEntries"`
	MaxSize      int               `json:"maxSize"`
	TTLMinutes   float64           `json:"ttlMinutes"`
	Entries      []CacheEntryStats `json:"entries"`
}

// CacheEntryStats describes one live cache entry.
type CacheEntryStats struct {
	Address          string  `json:"address"`
	AgeMinutes       float64 `json:"ageMinutes"`
	ExpiresInMinutes float64 `json:"expiresInMinutes"`
}
