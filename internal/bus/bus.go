// Package bus fans a sheet's ChangeSets out to other gridsheetd processes
// over ZeroMQ PUB/SUB, so a tier of stateless front processes can serve
// websocket clients without each holding a full Engine — only the process
// that owns a sheet's Engine calls Set; everyone else relays what it
// publishes. This repurposes the ZeroMQ socket lifecycle the teacher
// codebase used for a Jupyter kernel's wire protocol for a different wire
// format entirely (see DESIGN.md).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-zeromq/zmq4"

	"gridsheet/internal/exprtree"
)

// Envelope is one sheet's worth of changed cells, as published by the
// process that owns the authoritative Engine for that sheet.
type Envelope struct {
	SheetID int          `json:"sheet_id"`
	Cells   []CellChange `json:"cells"`
}

// CellChange is a single re-evaluated cell, flattened for the wire.
type CellChange struct {
	Row    int     `json:"row"`
	Col    int     `json:"col"`
	Raw    string  `json:"raw"`
	Out    json.RawMessage `json:"out"`
}

// MarshalResult renders an exprtree.Result the same way internal/hub does,
// so cells carried over the bus and cells carried over the websocket agree
// on wire shape.
func MarshalResult(r exprtree.Result) (json.RawMessage, error) {
	switch v := r.(type) {
	case exprtree.NumResult:
		return json.Marshal(map[string]float64{"Num": v.Value})
	case exprtree.TextResult:
		return json.Marshal(map[string]string{"Text": v.Value})
	case exprtree.ErrorResult:
		return json.Marshal(map[string]string{"Error": v.Message})
	default:
		return nil, fmt.Errorf("bus: unknown result type %T", r)
	}
}

func topic(sheetID int) string {
	return fmt.Sprintf("sheet:%d", sheetID)
}

// Publisher binds a PUB socket and broadcasts Envelopes, one topic frame
// per sheet so subscribers can filter server-side.
type Publisher struct {
	sock zmq4.Socket
}

// NewPublisher binds a PUB socket at addr (e.g. "tcp://*:5556").
func NewPublisher(addr string) (*Publisher, error) {
	sock := zmq4.NewPub(context.Background())
	if err := sock.Listen(addr); err != nil {
		return nil, fmt.Errorf("bus: bind publisher at %s: %w", addr, err)
	}
	return &Publisher{sock: sock}, nil
}

// Publish sends one Envelope under the topic of env.SheetID.
func (p *Publisher) Publish(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	msg := zmq4.NewMsgFrom([]byte(topic(env.SheetID)), payload)
	return p.sock.Send(msg)
}

func (p *Publisher) Close() error {
	return p.sock.Close()
}

// Subscriber connects a SUB socket and streams Envelopes for one sheet.
type Subscriber struct {
	sock    zmq4.Socket
	logger  *log.Logger
	Changes chan Envelope
}

// NewSubscriber dials addr and subscribes to sheetID's topic.
func NewSubscriber(addr string, sheetID int, logger *log.Logger) (*Subscriber, error) {
	sock := zmq4.NewSub(context.Background())
	if err := sock.Dial(addr); err != nil {
		return nil, fmt.Errorf("bus: dial subscriber at %s: %w", addr, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, topic(sheetID)); err != nil {
		return nil, fmt.Errorf("bus: subscribe to %s: %w", topic(sheetID), err)
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Subscriber{sock: sock, logger: logger, Changes: make(chan Envelope, 64)}
	go s.run()
	return s, nil
}

func (s *Subscriber) run() {
	defer close(s.Changes)
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			s.logger.Printf("bus: subscriber recv stopped: %v", err)
			return
		}
		if len(msg.Frames) != 2 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(msg.Frames[1], &env); err != nil {
			s.logger.Printf("bus: dropping malformed envelope: %v", err)
			continue
		}
		s.Changes <- env
	}
}

func (s *Subscriber) Close() error {
	return s.sock.Close()
}
