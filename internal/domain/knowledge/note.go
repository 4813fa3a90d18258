// Package knowledge defines indexed notes searchable across accounts.
package knowledge

import "time"

// Note is one indexed knowledge entry.
type Note struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Hit is one search result with its match rank.
type Hit struct {
	Note Note    `json:"note"`
	Rank float64 `json:"rank"`
}
