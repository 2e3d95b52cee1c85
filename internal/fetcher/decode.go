package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pitabwire/charlist/model"
)

// wirePage is the characters API list response.
type wirePage struct {
	Info    *wireInfo       `json:"info"`
	Results []wireCharacter `json:"results"`
}

type wireInfo struct {
	Count int     `json:"count"`
	Pages int     `json:"pages"`
	Next  *string `json:"next"`
}

type wireCharacter struct {
	ID      int     `json:"id"`
	Name    *string `json:"name"`
	Status  *string `json:"status"`
	Species *string `json:"species"`
	Gender  *string `json:"gender"`
	Image   *string `json:"image"`
}

// Decode parses one characters API list response into a Page. HasMore is true
// when info.next is present and non-empty. Unrecognized enum values decode to
// absent attributes.
func Decode(raw []byte) (model.Page, error) {
	var wp wirePage
	if err := json.Unmarshal(raw, &wp); err != nil {
		return model.Page{}, fmt.Errorf("fetcher: decode page: %w", err)
	}
	if wp.Info == nil {
		return model.Page{}, errors.New("fetcher: decode page: missing info")
	}
	if wp.Results == nil {
		return model.Page{}, errors.New("fetcher: decode page: missing results")
	}

	items := make([]model.Character, 0, len(wp.Results))
	for _, wc := range wp.Results {
		items = append(items, wc.toModel())
	}

	return model.Page{
		Items:   items,
		HasMore: wp.Info.Next != nil && *wp.Info.Next != "",
	}, nil
}

func (wc wireCharacter) toModel() model.Character {
	c := model.Character{
		ID:   wc.ID,
		Name: wc.Name,
	}
	if wc.Status != nil {
		c.Status = model.ParseStatus(*wc.Status)
	}
	if wc.Species != nil {
		c.Species = model.ParseSpecies(*wc.Species)
	}
	if wc.Gender != nil {
		c.Gender = model.ParseGender(*wc.Gender)
	}
	if wc.Image != nil {
		c.Image = *wc.Image
	}
	return c
}
