package server

import (
	"time"

	"github.com/hupe1980/deckmesh/core"
)

// CreateDeckRequest is the body of the create-deck operation.
type CreateDeckRequest struct {
	Topic           string `json:"topic" example:"The history of espresso"`
	Audience        string `json:"audience,omitempty" example:"coffee enthusiasts"`
	Theme           string `json:"theme,omitempty" example:"minimal"`
	ColorPreference string `json:"color_preference,omitempty" example:"warm earth tones"`
	SlideCount      int    `json:"slide_count" example:"5"`
	Quality         string `json:"quality,omitempty" enum:"draft,standard,premium"`
}

// EditSlideRequest is the body of the edit-slide operation.
type EditSlideRequest struct {
	Instruction string `json:"instruction" example:"Make the second bullet more concrete"`
}

// DeckResponse is the wire representation of a deck.
type DeckResponse struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Topic           string         `json:"topic"`
	Audience        string         `json:"audience,omitempty"`
	Theme           string         `json:"theme,omitempty"`
	ColorPreference string         `json:"color_preference,omitempty"`
	Quality         string         `json:"quality"`
	SlideCount      int            `json:"slide_count"`
	Status          string         `json:"status"`
	Version         int64          `json:"version"`
	Plan            *core.DeckPlan `json:"plan,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// SlideResponse is the wire representation of a slide.
type SlideResponse struct {
	ID             string  `json:"id"`
	Order          int     `json:"order"`
	Title          string  `json:"title"`
	Layout         string  `json:"layout,omitempty"`
	HTMLContent    *string `json:"html_content,omitempty"`
	Notes          *string `json:"notes,omitempty"`
	Status         string  `json:"status"`
	AppliedVersion int64   `json:"applied_version"`
}

// DeckDetailResponse is a deck together with its slides in deck order.
type DeckDetailResponse struct {
	DeckResponse
	Slides []SlideResponse `json:"slides"`
}

func deckResponse(d *core.Deck) DeckResponse {
	return DeckResponse{
		ID:              d.ID,
		Title:           d.Title,
		Topic:           d.Topic,
		Audience:        d.Audience,
		Theme:           d.Theme,
		ColorPreference: d.ColorPreference,
		Quality:         string(d.Quality),
		SlideCount:      d.SlideCount,
		Status:          string(d.Status),
		Version:         d.Version,
		Plan:            d.Plan,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func slideResponse(s core.Slide) SlideResponse {
	return SlideResponse{
		ID:             s.ID,
		Order:          s.Order,
		Title:          s.Title,
		Layout:         s.Layout,
		HTMLContent:    s.HTMLContent,
		Notes:          s.Notes,
		Status:         string(s.Status),
		AppliedVersion: s.AppliedVersion,
	}
}

func createRequest(body CreateDeckRequest) core.CreateRequest {
	return core.CreateRequest{
		Topic:           body.Topic,
		Audience:        body.Audience,
		Theme:           body.Theme,
		ColorPreference: body.ColorPreference,
		SlideCount:      body.SlideCount,
		Quality:         core.Quality(body.Quality),
	}
}
