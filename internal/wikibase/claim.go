// Package wikibase models Wikibase statements (claims, snaks, references)
// and serializes them into the JSON payloads the wbeditentity API expects.
package wikibase

import (
	"encoding/json"

	"taxoclaim/internal/errors"
)

// Rank is the statement rank recorded on a claim.
type Rank string

const (
	RankPreferred Rank = "preferred"
	RankNormal    Rank = "normal"
)

// Snak types understood by Wikibase. Only value snaks are written here.
const snakTypeValue = "value"

// Datavalue types.
const (
	dataTypeString   = "string"
	dataTypeEntityID = "wikibase-entityid"
)

// EntityValue is the datavalue payload for item references.
type EntityValue struct {
	EntityType string `json:"entity-type"`
	ID         string `json:"id"`
}

// DataValue carries a typed value inside a snak.
type DataValue struct {
	Value any    `json:"value"`
	Type  string `json:"type"`
}

// Snak is a single property-value assertion.
type Snak struct {
	SnakType  string     `json:"snaktype"`
	Property  string     `json:"property"`
	DataValue *DataValue `json:"datavalue,omitempty"`
}

// Reference groups provenance snaks attached to a claim.
type Reference struct {
	Snaks      map[string][]Snak `json:"snaks"`
	SnaksOrder []string          `json:"snaks-order"`
}

// Claim is a full Wikibase statement ready for wbeditentity.
type Claim struct {
	MainSnak   Snak        `json:"mainsnak"`
	Type       string      `json:"type"`
	Rank       Rank        `json:"rank,omitempty"`
	References []Reference `json:"references,omitempty"`
}

// NewItemSnak builds a value snak pointing at another entity.
func NewItemSnak(property, itemID string) Snak {
	return Snak{
		SnakType: snakTypeValue,
		Property: property,
		DataValue: &DataValue{
			Value: EntityValue{EntityType: "item", ID: itemID},
			Type:  dataTypeEntityID,
		},
	}
}

// NewStringSnak builds a value snak carrying a plain string. CommonsMedia
// and URL properties both serialize their values this way.
func NewStringSnak(property, value string) Snak {
	return Snak{
		SnakType: snakTypeValue,
		Property: property,
		DataValue: &DataValue{
			Value: value,
			Type:  dataTypeString,
		},
	}
}

// NewItemClaim builds a statement whose value is another entity, e.g. a
// depicts statement on a MediaInfo entity.
func NewItemClaim(property, itemID string, rank Rank, refs ...Reference) Claim {
	return Claim{
		MainSnak:   NewItemSnak(property, itemID),
		Type:       "statement",
		Rank:       rank,
		References: refs,
	}
}

// NewMediaClaim builds a statement whose value is a Commons file name.
// The name must be bare, without the File: namespace prefix.
func NewMediaClaim(property, fileName string, refs ...Reference) Claim {
	return Claim{
		MainSnak:   NewStringSnak(property, fileName),
		Type:       "statement",
		Rank:       RankNormal,
		References: refs,
	}
}

// Provenance describes where a claim's value was inferred from. Every claim
// written by this tool carries one reference block built from it.
type Provenance struct {
	InferredFromProperty string // property naming the heuristic
	InferredFromValue    string // item identifying the heuristic
	ImportURLProperty    string // property carrying the source permalink
	ImportURL            string // permalink to the exact source revision
}

// Reference renders the provenance as a Wikibase reference block. Snak
// order is stable so edits diff cleanly.
func (p Provenance) Reference() Reference {
	snaks := map[string][]Snak{
		p.InferredFromProperty: {NewItemSnak(p.InferredFromProperty, p.InferredFromValue)},
	}
	order := []string{p.InferredFromProperty}
	if p.ImportURL != "" {
		snaks[p.ImportURLProperty] = []Snak{NewStringSnak(p.ImportURLProperty, p.ImportURL)}
		order = append(order, p.ImportURLProperty)
	}
	return Reference{Snaks: snaks, SnaksOrder: order}
}

// editPayload is the shape wbeditentity expects in its data parameter.
type editPayload struct {
	Claims []Claim `json:"claims"`
}

// MarshalClaims renders claims as the wbeditentity data payload.
func MarshalClaims(claims []Claim) (string, error) {
	if len(claims) == 0 {
		return "", errors.Newf("no claims to marshal").
			Category(errors.CategoryValidation).
			Component("wikibase").
			Build()
	}
	data, err := json.Marshal(editPayload{Claims: claims})
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryClaimWrite).
			Component("wikibase").
			Context("claim_count", len(claims)).
			Build()
	}
	return string(data), nil
}
