// Package ipc handles communication between the daemon and its control clients.
//
// Every connection carries exactly one newline-terminated JSON request and one
// newline-terminated JSON response, after which the daemon closes it.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdSkip        CommandType = "SKIP"
	CmdClear       CommandType = "CLEAR"
	CmdPause       CommandType = "PAUSE"
	CmdResume      CommandType = "RESUME"
	CmdShutdown    CommandType = "SHUTDOWN"
	CmdAddQueue    CommandType = "ADD_QUEUE"
	CmdLoopSong    CommandType = "LOOP_SONG"
	CmdLoopQueue   CommandType = "LOOP_QUEUE"
	CmdAddPlaylist CommandType = "ADD_PLAYLIST"
	CmdSetVolume   CommandType = "SET_VOLUME"
	CmdStatus      CommandType = "STATUS"
)

var knownCommands = map[CommandType]struct{}{
	CmdSkip:        {},
	CmdClear:       {},
	CmdPause:       {},
	CmdResume:      {},
	CmdShutdown:    {},
	CmdAddQueue:    {},
	CmdLoopSong:    {},
	CmdLoopQueue:   {},
	CmdAddPlaylist: {},
	CmdSetVolume:   {},
	CmdStatus:      {},
}

// Known reports whether c is part of the command vocabulary
func (c CommandType) Known() bool {
	_, ok := knownCommands[c]
	return ok
}

// NeedsPayload reports whether the command carries a required payload
func (c CommandType) NeedsPayload() bool {
	switch c {
	case CmdAddQueue, CmdAddPlaylist, CmdSetVolume:
		return true
	}
	return false
}

// ErrUnknownCommand is returned when a request names a command outside the
// vocabulary.
var ErrUnknownCommand = errors.New("unknown command")

// Status is the outcome of a command
type Status string

const (
	StatusOK  Status = "OK"
	StatusErr Status = "ERR"
)

// Command represents a client request
type Command struct {
	Command CommandType `json:"command"`
	Payload *string     `json:"payload,omitempty"`
}

// NewCommand builds a command with an optional payload
func NewCommand(cmd CommandType, payload ...string) Command {
	c := Command{Command: cmd}
	if len(payload) > 0 {
		p := payload[0]
		c.Payload = &p
	}
	return c
}

// PayloadValue returns the payload, or "" when none was sent
func (c Command) PayloadValue() string {
	if c.Payload == nil {
		return ""
	}
	return *c.Payload
}

// ValidatePayload reports whether the payload requirement of the command is
// met. Commands that take no payload always validate.
func (c Command) ValidatePayload() bool {
	if !c.Command.NeedsPayload() {
		return true
	}
	return c.PayloadValue() != ""
}

// Response represents a daemon response
type Response struct {
	Status Status          `json:"STATUS"`
	ErrMsg string          `json:"ERRMSG,omitempty"`
	Data   json.RawMessage `json:"DATA,omitempty"`
}

// OK reports whether the response carries StatusOK
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// DecodeRequest decodes a request from JSON and rejects commands outside the
// vocabulary
func DecodeRequest(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to decode request: %w", err)
	}
	if !cmd.Command.Known() {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	return cmd, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON. Field names match
// case-insensitively, so the lowercase gateway shape decodes as well.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return Response{}, err
		}
	}
	return Response{
		Status: StatusOK,
		Data:   rawData,
	}, nil
}

// NewOKResponse creates a successful response without data
func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

// NewErrorResponse creates an error response
func NewErrorResponse(msg string) Response {
	return Response{
		Status: StatusErr,
		ErrMsg: msg,
	}
}
