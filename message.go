package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// wireKeys are the JSON keys of wireMessage. encoding/json matches keys
// case-insensitively; Decode accepts only these exact spellings.
var wireKeys = []string{"tag", "count", "name", "opponentName", "value", "yourCount", "theirCount", "won"}

// ErrMalformedMessage is returned by Decode for anything that is not one of
// the eight well-formed wire messages.
var ErrMalformedMessage = errors.New("malformed message")

// Tag names a message variant on the wire.
type Tag string

// Tag values are matched exactly; "name" is not NAME.
const (
	TagWinCount   Tag = "WINCOUNT"
	TagNamePlease Tag = "NAMEPLEASE"
	TagName       Tag = "NAME"
	TagMatched    Tag = "MATCHED"
	TagCountdown  Tag = "COUNTDOWN"
	TagClick      Tag = "CLICK"
	TagClickCount Tag = "CLICKCOUNT"
	TagGameOver   Tag = "GAMEOVER"
)

// Message is one of the wire variants below. The set is closed.
type Message interface {
	Tag() Tag
	fill(w *wireMessage)
}

type WinCount struct {
	Count int
}

type NamePlease struct{}

type Name struct {
	Name string
}

type Matched struct {
	OpponentName string
}

type Countdown struct {
	Value int
}

type Click struct{}

type ClickCount struct {
	YourCount  int
	TheirCount int
}

type GameOver struct {
	Won bool
}

func (WinCount) Tag() Tag   { return TagWinCount }
func (NamePlease) Tag() Tag { return TagNamePlease }
func (Name) Tag() Tag       { return TagName }
func (Matched) Tag() Tag    { return TagMatched }
func (Countdown) Tag() Tag  { return TagCountdown }
func (Click) Tag() Tag      { return TagClick }
func (ClickCount) Tag() Tag { return TagClickCount }
func (GameOver) Tag() Tag   { return TagGameOver }

// wireMessage is the flat JSON record every variant travels as. Pointer
// fields distinguish an absent field from a zero value.
type wireMessage struct {
	Tag          Tag     `json:"tag"`
	Count        *int    `json:"count,omitempty"`
	Name         *string `json:"name,omitempty"`
	OpponentName *string `json:"opponentName,omitempty"`
	Value        *int    `json:"value,omitempty"`
	YourCount    *int    `json:"yourCount,omitempty"`
	TheirCount   *int    `json:"theirCount,omitempty"`
	Won          *bool   `json:"won,omitempty"`
}

func (m WinCount) fill(w *wireMessage)   { w.Count = &m.Count }
func (NamePlease) fill(*wireMessage)     {}
func (m Name) fill(w *wireMessage)       { w.Name = &m.Name }
func (m Matched) fill(w *wireMessage)    { w.OpponentName = &m.OpponentName }
func (m Countdown) fill(w *wireMessage)  { w.Value = &m.Value }
func (Click) fill(*wireMessage)          {}
func (m GameOver) fill(w *wireMessage)   { w.Won = &m.Won }
func (m ClickCount) fill(w *wireMessage) { w.YourCount, w.TheirCount = &m.YourCount, &m.TheirCount }

// Encode serializes msg to its wire form.
func Encode(msg Message) []byte {
	w := wireMessage{Tag: msg.Tag()}
	msg.fill(&w)
	data, err := json.Marshal(w)
	if err != nil {
		// wireMessage only holds strings, ints and bools.
		panic(fmt.Sprintf("encode %s: %v", w.Tag, err))
	}
	return data
}

// Decode parses one wire message. Fields are never coerced: a number sent
// as text, a float for an integer field or an explicit null all fail.
func Decode(data []byte) (Message, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := checkKeys(raw); err != nil {
		return nil, err
	}

	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch w.Tag {
	case TagWinCount:
		if w.Count == nil {
			return nil, missingField(w.Tag, "count")
		}
		return WinCount{Count: *w.Count}, nil

	case TagNamePlease:
		return NamePlease{}, nil

	case TagName:
		if w.Name == nil {
			return nil, missingField(w.Tag, "name")
		}
		return Name{Name: *w.Name}, nil

	case TagMatched:
		if w.OpponentName == nil {
			return nil, missingField(w.Tag, "opponentName")
		}
		return Matched{OpponentName: *w.OpponentName}, nil

	case TagCountdown:
		if w.Value == nil {
			return nil, missingField(w.Tag, "value")
		}
		return Countdown{Value: *w.Value}, nil

	case TagClick:
		return Click{}, nil

	case TagClickCount:
		if w.YourCount == nil {
			return nil, missingField(w.Tag, "yourCount")
		}
		if w.TheirCount == nil {
			return nil, missingField(w.Tag, "theirCount")
		}
		return ClickCount{YourCount: *w.YourCount, TheirCount: *w.TheirCount}, nil

	case TagGameOver:
		if w.Won == nil {
			return nil, missingField(w.Tag, "won")
		}
		return GameOver{Won: *w.Won}, nil

	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformedMessage, w.Tag)
	}
}

func missingField(tag Tag, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMalformedMessage, tag, field)
}

// checkKeys rejects keys that differ from a wire key only in case. Other
// unknown keys are ignored.
func checkKeys(raw map[string]json.RawMessage) error {
	for key := range raw {
		for _, want := range wireKeys {
			if key != want && strings.EqualFold(key, want) {
				return fmt.Errorf("%w: key %q must be spelled %q", ErrMalformedMessage, key, want)
			}
		}
	}
	return nil
}
