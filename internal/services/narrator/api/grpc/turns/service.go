// Package turns exposes room turns over gRPC: a caller submits one round of
// player actions and receives the turn's events as a server stream.
//
// Messages are google.protobuf.Struct values so the service needs no
// generated code; SubmitRequest and Event document their shape.
package turns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/louisbranch/storyroom/internal/services/narrator/event"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/session"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "storyroom.narrator.v1.TurnService"
	// SubmitTurnMethod is the full method path of SubmitTurn.
	SubmitTurnMethod = "/" + ServiceName + "/SubmitTurn"
)

// Rooms resolves live rooms and their rosters.
type Rooms interface {
	Room(ctx context.Context, roomID string) (*session.Coordinator, error)
	Members(ctx context.Context, roomID string) ([]game.Member, error)
}

// SubmitRequest is one round of actions for a room.
type SubmitRequest struct {
	RoomID  string   `json:"room_id"`
	Actions []Action `json:"actions"`
}

// Action is one member's declared action. The acting character comes from
// the room roster.
type Action struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Struct encodes the request for the wire.
func (r SubmitRequest) Struct() (*structpb.Struct, error) {
	return toStruct(r)
}

// Event is the wire shape of one streamed event: its type and the JSON form
// of the event itself.
type Event struct {
	Type    event.Type     `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Service implements SubmitTurn.
type Service struct {
	rooms Rooms
	now   func() time.Time
}

// NewService creates a turn service over rooms.
func NewService(rooms Rooms) *Service {
	return &Service{rooms: rooms, now: time.Now}
}

// Register adds the service to a gRPC server.
func Register(server grpc.ServiceRegistrar, svc *Service) {
	server.RegisterService(&serviceDesc, svc)
}

// SubmitTurn validates the round against the room gate, runs the turn and
// streams every event in order.
func (s *Service) SubmitTurn(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s == nil || s.rooms == nil {
		return status.Error(codes.Internal, "rooms are not configured")
	}
	req, err := decodeRequest(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	ctx := stream.Context()
	room, err := s.rooms.Room(ctx, req.RoomID)
	if err != nil {
		return status.Errorf(codes.Internal, "load room: %v", err)
	}
	members, err := s.rooms.Members(ctx, req.RoomID)
	if err != nil {
		return status.Errorf(codes.Internal, "list members: %v", err)
	}
	actions, err := s.resolveActions(room, members, req.Actions)
	if err != nil {
		return err
	}
	if !room.CanAdvance(actions, len(members)) {
		return status.Errorf(codes.FailedPrecondition, "round is not complete: %d of %d members acted", len(actions), len(members))
	}

	turn := room.ProcessTurn(ctx, actions)
	defer turn.Close()
	for e := range turn.Events() {
		msg, err := encodeEvent(e)
		if err != nil {
			return status.Errorf(codes.Internal, "encode %s event: %v", e.Type(), err)
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}
	return turnStatus(turn.Err())
}

func (s *Service) resolveActions(room *session.Coordinator, members []game.Member, in []Action) ([]game.PlayerAction, error) {
	byUser := make(map[string]game.Member, len(members))
	for _, m := range members {
		byUser[m.UserID] = m
	}
	now := s.now()
	seen := make(map[string]bool, len(in))
	actions := make([]game.PlayerAction, 0, len(in))
	for _, a := range in {
		member, ok := byUser[a.UserID]
		if !ok {
			return nil, status.Errorf(codes.PermissionDenied, "user %q is not a member of room %s", a.UserID, room.RoomID())
		}
		if seen[a.UserID] {
			return nil, status.Errorf(codes.InvalidArgument, "user %q submitted more than one action", a.UserID)
		}
		seen[a.UserID] = true
		if !room.CanAct(member.UserID, member.CharacterID) {
			gate := room.GateStatus()
			return nil, status.Errorf(codes.FailedPrecondition, "%s cannot act: %s", member.Actor(), gate.Reason)
		}
		actions = append(actions, game.PlayerAction{
			UserID:        member.UserID,
			Username:      member.Username,
			CharacterID:   member.CharacterID,
			CharacterName: member.CharacterName,
			Text:          a.Text,
			Timestamp:     now,
		})
	}
	return actions, nil
}

func turnStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrTurnInProgress):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Errorf(codes.Internal, "turn failed: %v", err)
	}
}

func decodeRequest(in *structpb.Struct) (SubmitRequest, error) {
	var req SubmitRequest
	if in == nil {
		return req, errors.New("request is required")
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.RoomID == "" {
		return req, errors.New("room_id is required")
	}
	if len(req.Actions) == 0 {
		return req, errors.New("at least one action is required")
	}
	for i, a := range req.Actions {
		if strings.TrimSpace(a.UserID) == "" {
			return req, fmt.Errorf("actions[%d].user_id is required", i)
		}
		if strings.TrimSpace(a.Text) == "" {
			return req, fmt.Errorf("actions[%d].text is required", i)
		}
	}
	return req, nil
}

func encodeEvent(e event.Event) (*structpb.Struct, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return toStruct(Event{Type: e.Type(), Payload: payload})
}

// DecodeEvent parses a streamed message back into its wire shape.
func DecodeEvent(msg *structpb.Struct) (Event, error) {
	var out Event
	data, err := json.Marshal(msg.AsMap())
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}
