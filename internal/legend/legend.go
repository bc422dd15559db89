// Package legend defines the concentration legend shown over the map.
package legend

// Title is the legend heading.
const Title = "Concentración"

// Bucket is one severity class.
type Bucket struct {
	Grade float64 `json:"grade" doc:"Lower bound of the class" example:"0.4"`
	Label string  `json:"label" doc:"Class label" example:"Media"`
	Color string  `json:"color" doc:"Fill color (CSS)" example:"#ef3b2c"`
}

var buckets = []Bucket{
	{Grade: 0, Label: "Muy Baja", Color: "#fcbba1"},
	{Grade: 0.2, Label: "Baja", Color: "#fc4e2a"},
	{Grade: 0.4, Label: "Media", Color: "#ef3b2c"},
	{Grade: 0.8, Label: "Alta", Color: "#cb181d"},
	{Grade: 0.9, Label: "Muy Alta", Color: "#a50f15"},
}

// Buckets returns the five classes in ascending grade.
func Buckets() []Bucket {
	out := make([]Bucket, len(buckets))
	copy(out, buckets)
	return out
}

// Classify returns the bucket a normalized value falls in.
// Values below zero land in the first bucket.
func Classify(v float64) Bucket {
	b := buckets[0]
	for _, c := range buckets {
		if v >= c.Grade {
			b = c
		}
	}
	return b
}
