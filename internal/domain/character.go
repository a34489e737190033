package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Character is the partner identity composited into the poster. The value is
// sent to the remote workflow as-is.
type Character string

const (
	CharacterPipi     Character = "皮皮"
	CharacterShandian Character = "闪电"
	CharacterTangtang Character = "糖糖"
	CharacterZack     Character = "Zack"
	CharacterBadou    Character = "八斗"
)

// DefaultCharacter is preselected for a new session.
const DefaultCharacter = CharacterPipi

// CharacterInfo describes a selectable character.
type CharacterInfo struct {
	Key         string    `json:"key"`
	Value       Character `json:"value"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
}

var characters = []CharacterInfo{
	{Key: "pipi", Value: CharacterPipi, Label: "皮皮", Description: "活泼可爱"},
	{Key: "shandian", Value: CharacterShandian, Label: "闪电", Description: "聪明机智"},
	{Key: "tangtang", Value: CharacterTangtang, Label: "糖糖", Description: "甜美贴心"},
	{Key: "zack", Value: CharacterZack, Label: "Zack", Description: "帅气酷炫"},
	{Key: "badou", Value: CharacterBadou, Label: "八斗", Description: "憨厚老实"},
}

// Characters lists every selectable character in display order.
func Characters() []CharacterInfo {
	out := make([]CharacterInfo, len(characters))
	copy(out, characters)
	return out
}

// ParseCharacter accepts either the character value or its ASCII key.
func ParseCharacter(v string) (Character, error) {
	// Casers carry state and must not be shared between goroutines.
	folder := cases.Fold()
	needle := folder.String(norm.NFC.String(strings.TrimSpace(v)))
	if needle == "" {
		return "", NewError(KindValidation, "character is required", nil)
	}
	for _, c := range characters {
		if needle == c.Key || needle == folder.String(string(c.Value)) {
			return c.Value, nil
		}
	}
	return "", NewError(KindValidation, "unknown character "+strings.TrimSpace(v), nil)
}

// Valid reports whether c is part of the enumeration.
func (c Character) Valid() bool {
	for _, info := range characters {
		if info.Value == c {
			return true
		}
	}
	return false
}
