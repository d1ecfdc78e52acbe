package models

import "time"

// GameResponse is the JSON shape of one game on the wire. Field names match
// the existing web client.
type GameResponse struct {
	GameID       string    `json:"GameID"`
	GameName     string    `json:"GameName"`
	DateTime     time.Time `json:"DateTime"`
	CurrentSpots int       `json:"CurrentSpots"`
	MaxSpots     int       `json:"MaxSpots"`
	Members      []string  `json:"Members,omitempty"`
}

// NewGameResponse renders v. Members are included only when withMembers is
// set; callers decide whether the viewer may see them.
func NewGameResponse(v *GameView, withMembers bool) GameResponse {
	resp := GameResponse{
		GameID:       v.ID.String(),
		GameName:     v.Name,
		DateTime:     v.StartsAt,
		CurrentSpots: v.Occupancy,
		MaxSpots:     v.Capacity,
	}
	if withMembers {
		resp.Members = make([]string, 0, len(v.Members))
		for _, member := range v.Members {
			resp.Members = append(resp.Members, member.String())
		}
	}
	return resp
}

// MessageResponse acknowledges a mutation.
type MessageResponse struct {
	Message string `json:"message"`
}
