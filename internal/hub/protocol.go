package hub

import (
	"encoding/json"
	"fmt"

	"gridsheet/internal/exprtree"
)

// ClientMessage is anything a browser sends over the websocket connection.
type ClientMessage struct {
	Type string `json:"type"`
	Row  int    `json:"row"`
	Col  int    `json:"col"`
	Raw  string `json:"raw,omitempty"`
}

const (
	MsgUpdateCell = "update_cell"
	MsgLockCell   = "lock_cell"
	MsgUnlockCell = "unlock_cell"
)

// WireCell is the JSON shape of a single cell on the wire: the formula text
// the user typed plus its last computed result.
type WireCell struct {
	Raw string          `json:"raw"`
	Out json.RawMessage `json:"out"`
}

func marshalResult(r exprtree.Result) (json.RawMessage, error) {
	switch v := r.(type) {
	case exprtree.NumResult:
		return json.Marshal(map[string]float64{"Num": v.Value})
	case exprtree.TextResult:
		return json.Marshal(map[string]string{"Text": v.Value})
	case exprtree.ErrorResult:
		return json.Marshal(map[string]string{"Error": v.Message})
	default:
		return nil, fmt.Errorf("hub: unknown result type %T", r)
	}
}

func newWireCell(raw string, out exprtree.Result) (WireCell, error) {
	payload, err := marshalResult(out)
	if err != nil {
		return WireCell{}, err
	}
	return WireCell{Raw: raw, Out: payload}, nil
}

// Server-to-client messages. Type is always set so a client can switch on it.

type ConnectedMsg struct {
	Type     string              `json:"type"`
	UserID   string              `json:"user_id"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Cells    map[string]WireCell `json:"cells"`
}

type ParticipantsMsg struct {
	Type    string   `json:"type"`
	UserIDs []string `json:"user_ids"`
}

type CellUpdatedMsg struct {
	Type string              `json:"type"`
	Cell map[string]WireCell `json:"cells"`
}

type CellLockedMsg struct {
	Type   string `json:"type"`
	Coord  string `json:"coord"`
	UserID string `json:"user_id"` // empty means the lock was released
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	MsgConnected    = "connected"
	MsgParticipants = "participants"
	MsgCellUpdated  = "cell_updated"
	MsgCellLocked   = "cell_locked"
	MsgError        = "error"
)
