package querycontext

// Config tunes entity extraction and query construction.
type Config struct {
	// Window is how many of the newest messages are scanned for entities.
	Window int `yaml:"window" json:"window"`
	// DecayFactor reduces the weight of each older message: an occurrence
	// at index i (0 = newest) weighs 1 - i·DecayFactor.
	DecayFactor float64 `yaml:"decay_factor" json:"decay_factor"`
	// TopEntities is how many entities are kept.
	TopEntities int `yaml:"top_entities" json:"top_entities"`
	// CharacterWeight is added for every active character name.
	CharacterWeight float64 `yaml:"character_weight" json:"character_weight"`
	// GenericRatio drops entities found in more than this share of the
	// scanned messages.
	GenericRatio float64 `yaml:"generic_ratio" json:"generic_ratio"`
	// GenericMinMessages is the minimum number of scanned messages before
	// the generic filter applies.
	GenericMinMessages int `yaml:"generic_min_messages" json:"generic_min_messages"`
	// BoostFactor multiplies entity weight into BM25 repetitions.
	BoostFactor float64 `yaml:"boost_factor" json:"boost_factor"`
	// QueryMessages is how many recent messages feed the embedding query.
	QueryMessages int `yaml:"query_messages" json:"query_messages"`
}

// DefaultConfig returns the standard extraction parameters.
func DefaultConfig() Config {
	return Config{
		Window:             10,
		DecayFactor:        0.09,
		TopEntities:        5,
		CharacterWeight:    1.5,
		GenericRatio:       0.5,
		GenericMinMessages: 3,
		BoostFactor:        3,
		QueryMessages:      3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.DecayFactor <= 0 {
		c.DecayFactor = d.DecayFactor
	}
	if c.TopEntities <= 0 {
		c.TopEntities = d.TopEntities
	}
	if c.CharacterWeight <= 0 {
		c.CharacterWeight = d.CharacterWeight
	}
	if c.GenericRatio <= 0 {
		c.GenericRatio = d.GenericRatio
	}
	if c.GenericMinMessages <= 0 {
		c.GenericMinMessages = d.GenericMinMessages
	}
	if c.BoostFactor <= 0 {
		c.BoostFactor = d.BoostFactor
	}
	if c.QueryMessages <= 0 {
		c.QueryMessages = d.QueryMessages
	}
	return c
}
