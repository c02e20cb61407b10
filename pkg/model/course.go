package model

import "time"

// Course is a departure with fixed capacity. Amounts are in minor currency units.
type Course struct {
	ID            string    `json:"id" bson:"_id" yaml:"id" validate:"required"`
	Name          string    `json:"name" bson:"name" yaml:"name" validate:"required,min=2,max=100"`
	DepartureAt   time.Time `json:"departure_at" bson:"departure_at" yaml:"departure_at" validate:"required"`
	Capacity      int       `json:"capacity" bson:"capacity" yaml:"capacity" validate:"min=0"`
	Prerequisites []string  `json:"prerequisites" bson:"prerequisites" yaml:"prerequisites" validate:"omitempty,dive,required"`
	Price         int64     `json:"price" bson:"price" yaml:"price" validate:"min=0"`
	Currency      string    `json:"currency" bson:"currency" yaml:"currency" validate:"required,len=3"`
}
