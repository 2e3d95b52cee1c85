package fetcher

import (
	"context"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/pitabwire/charlist/model"
)

// StubFetcher serves preconfigured pages without any network access. Pages
// maps a page number to its content; missing pages fall back to Default.
// When Err is set every call fails with it.
type StubFetcher struct {
	Pages   map[int]model.Page
	Default model.Page
	Err     error
	// Delay holds each call for the given duration, or until ctx is done.
	Delay time.Duration

	calls atomic.Int64
}

// NewMockFetcher returns a stub that answers every page with Rick Sanchez and
// Morty Smith and always reports another page.
func NewMockFetcher() *StubFetcher {
	return &StubFetcher{Default: model.Page{Items: mockCharacters(), HasMore: true}}
}

// NewErrorFetcher returns a stub whose every call fails with a 401 FetchError.
func NewErrorFetcher() *StubFetcher {
	return &StubFetcher{
		Err: model.NewFetchError(http.StatusUnauthorized, model.StatusMessage(http.StatusUnauthorized)),
	}
}

// FetchPage returns the configured page or error.
func (s *StubFetcher) FetchPage(ctx context.Context, page int) (model.Page, error) {
	s.calls.Add(1)

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return model.Page{}, model.NewInvalidResponseError(ctx.Err())
		}
	}
	if s.Err != nil {
		return model.Page{}, s.Err
	}

	p, ok := s.Pages[page]
	if !ok {
		p = s.Default
	}
	return model.Page{Items: slices.Clone(p.Items), HasMore: p.HasMore}, nil
}

// Calls returns how many times FetchPage was invoked.
func (s *StubFetcher) Calls() int {
	return int(s.calls.Load())
}

func mockCharacters() []model.Character {
	const avatar = "https://rickandmortyapi.com/api/character/avatar/5.jpeg"
	return []model.Character{
		mockCharacter(1, "Rick Sanchez", "alive", "human", "male", avatar),
		mockCharacter(2, "Morty Smith", "alive", "human", "male", avatar),
	}
}

func mockCharacter(id int, name, status, species, gender, image string) model.Character {
	return model.Character{
		ID:      id,
		Name:    &name,
		Status:  model.ParseStatus(status),
		Species: model.ParseSpecies(species),
		Gender:  model.ParseGender(gender),
		Image:   image,
	}
}
