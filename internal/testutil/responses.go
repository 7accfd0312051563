package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/deckmesh/model"
)

// PlanResponse returns a canned planning-call JSON response with n slides.
func PlanResponse(title string, n int) string {
	type slide struct {
		Order   int    `json:"order"`
		Title   string `json:"title"`
		Outline string `json:"outline"`
	}
	slides := make([]slide, 0, n)
	for i := 1; i <= n; i++ {
		slides = append(slides, slide{Order: i, Title: fmt.Sprintf("Slide %d", i), Outline: fmt.Sprintf("Outline %d", i)})
	}
	data, _ := json.Marshal(map[string]any{"title": title, "slides": slides})
	return string(data)
}

// LayoutResponse returns a canned layout-selection JSON response.
func LayoutResponse(name string) string {
	data, _ := json.Marshal(map[string]any{"layout": name})
	return string(data)
}

// ContentResponse returns a canned content-render JSON response.
func ContentResponse(title, html string) string {
	data, _ := json.Marshal(map[string]any{"title": title, "html_content": html})
	return string(data)
}

// ScriptHappyPath registers substring-matched responses on a mock completer
// covering the plan, layout-selection, content-render and edit prompts, so a
// full pipeline run succeeds for any slide count up to n.
func ScriptHappyPath(m *model.MockCompleter, title string, n int) {
	m.AddResponse("Create a presentation plan", PlanResponse(title, n))
	m.AddResponse("Pick the best layout", LayoutResponse("bullet-list"))
	m.AddResponse("Write the final content", ContentResponse("Rendered", "<h1>Rendered</h1>"))
	m.AddResponse("Revise slide", ContentResponse("Revised", "<h1>Revised</h1>"))
}
