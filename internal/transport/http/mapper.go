package http

import (
	"encoding/json"
	"errors"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, badRequest("invalid msg payload")
		}
		if msg.To == "" || msg.Text == "" {
			return nil, badRequest("to and text are required")
		}
		return &core.Command{
			Kind:    core.CommandSendDirect,
			Message: core.Message{ID: msg.ID, To: msg.To, Text: msg.Text},
		}, nil
	case proto.InboundTypeGroup:
		var msg proto.GroupData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, badRequest("invalid gmsg payload")
		}
		if msg.Room == "" || msg.Text == "" {
			return nil, badRequest("room and text are required")
		}
		return &core.Command{
			Kind:    core.CommandSendRoomMessage,
			Room:    msg.Room,
			Message: core.Message{Text: msg.Text},
		}, nil
	case proto.InboundTypeCreate:
		var create proto.CreateData
		if err := json.Unmarshal(inbound.Data, &create); err != nil {
			return nil, badRequest("invalid create payload")
		}
		if create.Room == "" {
			return nil, badRequest("room is required")
		}
		return &core.Command{Kind: core.CommandCreateRoom, Room: create.Room, Invitees: create.Invitees}, nil
	case proto.InboundTypeJoin, proto.InboundTypeMembers:
		var room proto.RoomData
		if err := json.Unmarshal(inbound.Data, &room); err != nil {
			return nil, badRequest("invalid room payload")
		}
		if room.Room == "" {
			return nil, badRequest("room is required")
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeMembers {
			kind = core.CommandRoomMembers
		}
		return &core.Command{Kind: kind, Room: room.Room}, nil
	case proto.InboundTypePing:
		return &core.Command{Kind: core.CommandPing}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func responseData(cmd *core.Command, res *core.Result) any {
	switch cmd.Kind {
	case core.CommandSendDirect, core.CommandSendRoomMessage:
		return eventMessage(res.Message)
	case core.CommandCreateRoom, core.CommandJoinRoom, core.CommandRoomMembers:
		return proto.MembersData{Room: cmd.Room, Members: res.Members}
	default:
		return nil
	}
}

func errorFromSubmit(err error) *proto.Error {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return &proto.Error{Code: ce.Code, Msg: ce.Message}
	}
	return &proto.Error{Code: core.ErrCodeUnavailable, Msg: err.Error()}
}

func eventMessage(msg core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:   msg.ID,
		Room: msg.Room,
		From: msg.From,
		To:   msg.To,
		Text: msg.Text,
		TS:   msg.CreatedAt.Unix(),
	}
}

func outboundFromEvent(event *core.Event) (proto.Outbound, bool) {
	switch event.Kind {
	case core.EventDirectMessage:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventDirect, Data: eventMessage(event.Message)}, true
	case core.EventRoomMessage:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventRoom, Data: eventMessage(event.Message)}, true
	case core.EventInvited:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventInvited,
			Data:  proto.EventInvite{Room: event.Room, By: event.User},
		}, true
	default:
		// Presence changes are not part of the wire protocol.
		return proto.Outbound{}, false
	}
}
