package pipeline

import (
	"fmt"
	"strings"
)

// LayoutTemplate is one entry of the layout catalog offered to the
// layout-selection step.
type LayoutTemplate struct {
	Name        string
	Description string
}

// DefaultCatalog is the built-in layout catalog. Callers may supply their own
// via Options.Catalog.
var DefaultCatalog = []LayoutTemplate{
	{Name: "title-hero", Description: "Large centered title with a subtitle, for openings"},
	{Name: "bullet-list", Description: "Heading with up to five concise bullet points"},
	{Name: "two-column", Description: "Two side-by-side text columns for contrasts or pairings"},
	{Name: "image-focus", Description: "A dominant visual region with a short caption"},
	{Name: "quote", Description: "A single highlighted quotation with attribution"},
	{Name: "comparison", Description: "A table comparing options across criteria"},
	{Name: "timeline", Description: "Horizontal sequence of dated milestones"},
	{Name: "closing-cta", Description: "Summary takeaways with a call to action"},
}

func catalogPrompt(catalog []LayoutTemplate) string {
	var sb strings.Builder
	for _, t := range catalog {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return sb.String()
}

func catalogHas(catalog []LayoutTemplate, name string) bool {
	for _, t := range catalog {
		if t.Name == name {
			return true
		}
	}
	return false
}
