package models

// Personality is the persisted user override of the model instruction.
type Personality struct {
	Override string `json:"personality"`
}
