package models

type Service struct {
	ServiceID   string           `json:"service_id"`
	Name        string           `json:"name"`
	Category    string           `json:"category,omitempty"`
	Description string           `json:"description,omitempty"`
	Variants    []ServiceVariant `json:"variants,omitempty"`
}

type ServiceVariant struct {
	VariantID       string  `json:"variant_id"`
	ServiceID       string  `json:"service_id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
}
