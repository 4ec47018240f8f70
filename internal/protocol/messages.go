// Package protocol defines the line-delimited JSON messages exchanged with the
// host process over stdin and stdout.
package protocol

import "errors"

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrUnknownChannel = errors.New("protocol: unknown channel")
	ErrUnknownAction  = errors.New("protocol: unknown action")
)

// Message kinds.
const (
	KindRequest  = "request"
	KindCommand  = "command"
	KindResponse = "response"
	KindUpdate   = "update"
)

// Channel names a request/response operation.
type Channel string

const (
	ChannelGetModes              Channel = "database:modes:getAll"
	ChannelGetMode               Channel = "database:modes:get"
	ChannelCreateMode            Channel = "database:modes:createMode"
	ChannelUpdateMode            Channel = "database:modes:updateMode"
	ChannelDeleteMode            Channel = "database:modes:deleteMode"
	ChannelActivateMode          Channel = "database:modes:activateMode"
	ChannelGetResults            Channel = "database:results:getAll"
	ChannelDeleteResult          Channel = "database:results:deleteResult"
	ChannelAddExample            Channel = "database:examples:addExample"
	ChannelGetVoiceModels        Channel = "database:voiceModels:getAll"
	ChannelGetLanguageModels     Channel = "database:languageModels:getAll"
	ChannelGetTextReplacements   Channel = "database:textReplacements:getAll"
	ChannelCreateTextReplacement Channel = "database:textReplacements:create"
	ChannelDeleteTextReplacement Channel = "database:textReplacements:delete"
	ChannelGetDevices            Channel = "device:getAll"
	ChannelSetDevice             Channel = "device:set"
)

// Action names a responseless command.
type Action string

const (
	ActionToggle     Action = "toggle"
	ActionCancel     Action = "cancel"
	ActionAudioLevel Action = "audio_level"
	ActionSwitchMode Action = "switch_mode"
)

// UpdateKind discriminates outbound updates.
type UpdateKind string

const (
	UpdateProgress      UpdateKind = "progress"
	UpdateStatus        UpdateKind = "status"
	UpdateAudioLevel    UpdateKind = "audio_level"
	UpdateTranscription UpdateKind = "transcription"
	UpdateResult        UpdateKind = "result"
	UpdateError         UpdateKind = "error"
	UpdateException     UpdateKind = "exception"
	UpdateModes         UpdateKind = "modes"
)

// Bus subjects used when protocol traffic is mirrored onto NATS.
const (
	SubjectUpdatePrefix = "update"
	SubjectResponse     = "response"
)
