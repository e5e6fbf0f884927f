package index

import "fmt"

// Record is one recipe from the corpus snapshot. Text is the derived
// concatenation of the other fields and is the unit that gets embedded.
type Record struct {
	Title       string `json:"title"`
	Ingredients string `json:"ingredients"`
	Directions  string `json:"directions"`
	Text        string `json:"text"`
}

// DeriveText builds the embeddable text for a recipe. Deterministic: the same
// fields always produce the same text, so re-ingestion reproduces embeddings.
func DeriveText(title, ingredients, directions string) string {
	return fmt.Sprintf("Title: %s\nIngredients: %s\nInstructions: %s", title, ingredients, directions)
}

// NewRecord creates a Record with its derived text computed.
func NewRecord(title, ingredients, directions string) Record {
	return Record{
		Title:       title,
		Ingredients: ingredients,
		Directions:  directions,
		Text:        DeriveText(title, ingredients, directions),
	}
}
