package pipeline

import (
	"fmt"
	"strings"

	"github.com/hupe1980/deckmesh/core"
)

const planSystemPrompt = `You are an expert presentation designer. You break a topic down into a
coherent slide-by-slide narrative: a strong opening, a logical build-up of
ideas, and a memorable close. You write for the stated audience and never pad
slides with filler.`

const layoutSystemPrompt = `You are a presentation layout specialist. Given a slide outline and a
catalog of layout templates, you pick the single template that presents the
slide's content most effectively.`

const contentSystemPrompt = `You are a presentation content author. You write the final content of a
single slide as clean semantic HTML (headings, paragraphs, lists, tables as
appropriate) with no scripts, no external resources and no inline event
handlers. You keep slides scannable: short sentences, concrete wording.`

func planPrompt(deck *core.Deck) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a presentation plan with exactly %d slides.\n\n", deck.SlideCount)
	fmt.Fprintf(&sb, "Topic: %s\n", deck.Topic)
	if deck.Audience != "" {
		fmt.Fprintf(&sb, "Audience: %s\n", deck.Audience)
	}
	if deck.Theme != "" {
		fmt.Fprintf(&sb, "Theme: %s\n", deck.Theme)
	}
	if deck.ColorPreference != "" {
		fmt.Fprintf(&sb, "Color preference: %s\n", deck.ColorPreference)
	}
	sb.WriteString("\nNumber the slides 1 through ")
	fmt.Fprintf(&sb, "%d in presentation order. For each slide give a title, a detailed content outline and short presenter notes.", deck.SlideCount)
	return sb.String()
}

func layoutPrompt(deck *core.Deck, spec core.SlideSpec, catalog []LayoutTemplate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pick the best layout for slide %d of a presentation about %q.\n\n", spec.Order, deck.Topic)
	fmt.Fprintf(&sb, "Slide title: %s\nSlide outline: %s\n\n", spec.Title, spec.Outline)
	sb.WriteString("Available layouts:\n")
	sb.WriteString(catalogPrompt(catalog))
	sb.WriteString("\nAnswer with the layout name exactly as listed.")
	return sb.String()
}

func contentPrompt(deck *core.Deck, spec core.SlideSpec, layout string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the final content for slide %d of a presentation about %q using the %q layout.\n\n", spec.Order, deck.Topic, layout)
	fmt.Fprintf(&sb, "Slide title: %s\nContent outline: %s\n", spec.Title, spec.Outline)
	if spec.Notes != "" {
		fmt.Fprintf(&sb, "Planned presenter notes: %s\n", spec.Notes)
	}
	if deck.Audience != "" {
		fmt.Fprintf(&sb, "Audience: %s\n", deck.Audience)
	}
	if deck.Theme != "" {
		fmt.Fprintf(&sb, "Visual theme: %s\n", deck.Theme)
	}
	if deck.ColorPreference != "" {
		fmt.Fprintf(&sb, "Color preference: %s\n", deck.ColorPreference)
	}
	sb.WriteString("\nReturn the slide body as semantic HTML without <html>, <head> or <body> wrappers.")
	return sb.String()
}

func editPrompt(deck *core.Deck, slide *core.Slide, instruction string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Revise slide %d of a presentation about %q.\n\n", slide.Order, deck.Topic)
	fmt.Fprintf(&sb, "Current title: %s\n", slide.Title)
	if slide.HTMLContent != nil {
		fmt.Fprintf(&sb, "Current HTML content:\n%s\n", *slide.HTMLContent)
	}
	if slide.Notes != nil && *slide.Notes != "" {
		fmt.Fprintf(&sb, "Current presenter notes: %s\n", *slide.Notes)
	}
	fmt.Fprintf(&sb, "\nRevision instruction: %s\n", instruction)
	sb.WriteString("\nApply the instruction while keeping everything it does not mention. Return the complete revised slide.")
	return sb.String()
}
