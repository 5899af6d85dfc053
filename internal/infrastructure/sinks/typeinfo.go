package sinks

// ConfigField describes one setting read by a sink type.
type ConfigField struct {
	Name        string `json:"name"`
	Env         string `json:"env"`
	Type        string `json:"type"` // "string", "number", "bool"
	Required    bool   `json:"required"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// SinkTypeInfo describes a sink type and the configuration it expects.
// Returned by Factory.ConfigSpec() and exposed via GET /sinks/info and GET /sinks/types/:type.
type SinkTypeInfo struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	BestEffort  bool          `json:"best_effort"`
	Fields      []ConfigField `json:"fields"`
}
