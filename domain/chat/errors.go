package chat

import "errors"

// Code is a stable, client-facing error code.
type Code string

const (
	CodeAuth            Code = "AUTH_ERROR"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeInvalidMessage  Code = "INVALID_MESSAGE"
	CodeRoomNotFound    Code = "ROOM_NOT_FOUND"
	CodeMessageNotFound Code = "MESSAGE_NOT_FOUND"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeAlreadyMember   Code = "ALREADY_MEMBER"
	CodeNotMember       Code = "NOT_MEMBER"
	CodeOwnerRemoval    Code = "OWNER_REMOVAL"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Error is a coded chat failure. Sentinels below are compared with errors.Is;
// wrap them with fmt.Errorf("...: %w", err) to add detail.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNotJoined indicates the connection has not sent user:join yet.
	ErrNotJoined = &Error{Code: CodeAuth, Message: "User not authenticated"}
	// ErrInvalidPayload indicates a malformed or incomplete event payload.
	ErrInvalidPayload = &Error{Code: CodeValidation, Message: "Invalid payload"}
	// ErrEmptyContent indicates message content that is empty after trimming.
	ErrEmptyContent = &Error{Code: CodeInvalidMessage, Message: "Message content cannot be empty"}
	// ErrRoomNotFound indicates the room does not exist.
	ErrRoomNotFound = &Error{Code: CodeRoomNotFound, Message: "Room not found"}
	// ErrMessageNotFound indicates the message does not exist or is not visible to the caller.
	ErrMessageNotFound = &Error{Code: CodeMessageNotFound, Message: "Message not found"}
	// ErrNotParticipant indicates the caller is not a participant of the room.
	ErrNotParticipant = &Error{Code: CodeUnauthorized, Message: "Not authorized to join this room"}
	// ErrAlreadyMember indicates an add of a user who already participates.
	ErrAlreadyMember = &Error{Code: CodeAlreadyMember, Message: "User is already in the room"}
	// ErrNotMember indicates a removal of a user who does not participate.
	ErrNotMember = &Error{Code: CodeNotMember, Message: "User is not in the room"}
	// ErrOwnerRemoval indicates an attempt to remove the room owner.
	ErrOwnerRemoval = &Error{Code: CodeOwnerRemoval, Message: "Room owner cannot be removed"}
	// ErrInternal is reported in place of unexpected failures.
	ErrInternal = &Error{Code: CodeInternal, Message: "Internal error"}
)

var byCode = map[Code]*Error{
	CodeAuth:            ErrNotJoined,
	CodeValidation:      ErrInvalidPayload,
	CodeInvalidMessage:  ErrEmptyContent,
	CodeRoomNotFound:    ErrRoomNotFound,
	CodeMessageNotFound: ErrMessageNotFound,
	CodeUnauthorized:    ErrNotParticipant,
	CodeAlreadyMember:   ErrAlreadyMember,
	CodeNotMember:       ErrNotMember,
	CodeOwnerRemoval:    ErrOwnerRemoval,
	CodeInternal:        ErrInternal,
}

// CodeOf returns the code carried by err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// AsError converts err into the *Error sent to clients. Uncoded errors
// collapse into ErrInternal so internals never leak.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

// FromCode returns the sentinel for code. Unknown codes map to ErrInternal.
func FromCode(code Code) *Error {
	if e, ok := byCode[code]; ok {
		return e
	}
	return ErrInternal
}
