package main

import (
	"fmt"
	"log"
	"net/http"
)

// Canned vision-provider stand-in for local development. Wraps the signal
// in a markdown fence on purpose, the way real model output often arrives,
// so the fence-stripping path gets exercised end to end.
func main() {
	http.HandleFunc("/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		signal := `{
  "version": 1,
  "aesthetic": {"primary": "minimalist", "secondary": "classic", "confidence": 0.87},
  "formality": "smart-casual",
  "statement": "subtle",
  "season": "light",
  "palette": {"colors": ["charcoal", "cream", "navy"], "confidence": 0.82},
  "pattern": "solid",
  "material": "wool"
}`

		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "```json\n%s\n```", signal)

		log.Printf("Received analyze request: %d bytes", r.ContentLength)
	})

	log.Println("Test provider starting on port 9000")
	http.ListenAndServe(":9000", nil)
}
