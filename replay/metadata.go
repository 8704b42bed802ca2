// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"encoding/json"

	"github.com/danjacques/gos2replay/support/errkind"

	"github.com/pkg/errors"
)

// Metadata is the game metadata document stored in newer replays.
type Metadata struct {
	Title          string           `json:"Title"`
	GameVersion    string           `json:"GameVersion"`
	DataBuild      string           `json:"DataBuild"`
	DataVersion    string           `json:"DataVersion"`
	BaseBuild      string           `json:"BaseBuild"`
	Duration       int              `json:"Duration"`
	IsNotAvailable bool             `json:"IsNotAvailable"`
	Players        []PlayerMetadata `json:"Players"`
}

// PlayerMetadata is a single player's entry in Metadata.
type PlayerMetadata struct {
	PlayerID     int     `json:"PlayerID"`
	APM          float64 `json:"APM"`
	Result       string  `json:"Result"`
	SelectedRace string  `json:"SelectedRace"`
	AssignedRace string  `json:"AssignedRace"`
}

// Player returns the metadata entry for the player with the specified ID, or
// nil if there is none.
func (md *Metadata) Player(id int) *PlayerMetadata {
	for i := range md.Players {
		if md.Players[i].PlayerID == id {
			return &md.Players[i]
		}
	}
	return nil
}

// ParseMetadata parses a game metadata document.
//
// Unknown fields are ignored, since newer clients add them freely.
func ParseMetadata(data []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, errors.Wrapf(errkind.ErrCorrupted, "parsing metadata: %s", err)
	}
	return &md, nil
}
