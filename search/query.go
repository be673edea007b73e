// Package search indexes cached message history locally so the user can
// find old messages without a server round trip.
package search

import (
	"strconv"
	"strings"
)

// Query represents the structured parameters of a history search.
// It decouples the raw compose-field input from the index engine.
type Query struct {
	RawInput string // the original input from the user
	Terms    string // the actual text to match
	RoomID   string // restrict to one room; empty searches everywhere
	SenderID string // restrict to one sender
	Limit    int    // pagination: number of results
}

const defaultLimit = 10

// ParseQuery extracts command-line style arguments from a raw input.
// Example: /find invoice --room 12 --from alice --limit 5
func ParseQuery(input string) *Query {
	query := &Query{
		RawInput: input,
		Limit:    defaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "room":
				query.RoomID = val
			case "from":
				query.SenderID = val
			case "limit":
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++ // skip the value part in next iteration
			continue
		}

		// Anything that is not a flag or the command itself is a term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}
