package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var (
	// ErrUnknownEvent is returned for an envelope type the codec does not know.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformed is returned when an envelope or payload cannot be decoded
	// or fails validation.
	ErrMalformed = errors.New("malformed event")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type normalizer interface {
	normalize()
}

func (j *Join) normalize() { j.DisplayName = strings.TrimSpace(j.DisplayName) }

func (p *SendPrivate) normalize() {
	p.To = strings.TrimSpace(p.To)
	p.LocalID = strings.TrimSpace(p.LocalID)
}

func (p *SetPrivateTyping) normalize() { p.To = strings.TrimSpace(p.To) }

func (r *ReactionTarget) normalize() {
	r.MessageID = strings.TrimSpace(r.MessageID)
	r.Emoji = strings.TrimSpace(r.Emoji)
	r.ChatUser = strings.TrimSpace(r.ChatUser)
	if !r.IsPrivate {
		r.ChatUser = ""
	}
}

// DecodeIntent parses one client frame. Unknown types, unknown fields and
// payloads failing validation are rejected before they reach any store.
func DecodeIntent(raw []byte) (Intent, error) {
	var env envelope
	if err := strictUnmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch env.Type {
	case TypeJoin:
		return decodeIntent[Join](env)
	case TypeMessage:
		return decodeIntent[SendMessage](env)
	case TypePrivateMessage:
		return decodeIntent[SendPrivate](env)
	case TypeTyping:
		return decodeIntent[SetTyping](env)
	case TypePrivateTyping:
		return decodeIntent[SetPrivateTyping](env)
	case TypeAddReaction:
		return decodeIntent[AddReaction](env)
	case TypeRemoveReaction:
		return decodeIntent[RemoveReaction](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func decodeIntent[T Intent](env envelope) (Intent, error) {
	var intent T
	if err := strictUnmarshal(env.Data, &intent); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, env.Type, err)
	}
	if n, ok := any(&intent).(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(intent); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, env.Type, err)
	}
	return intent, nil
}

// ValidateIntent applies the checks DecodeIntent runs after decoding, so a
// client can refuse to send what the server would drop.
func ValidateIntent(i Intent) error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformed, i.intentType(), err)
	}
	return nil
}

// EncodeIntent builds the frame a client sends for i.
func EncodeIntent(i Intent) ([]byte, error) {
	return encode(i.intentType(), i)
}

// EncodeFact builds the frame the server sends for f.
func EncodeFact(f Fact) ([]byte, error) {
	return encode(f.factType(), f)
}

// DecodeFact parses one server frame.
func DecodeFact(raw []byte) (Fact, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch env.Type {
	case TypeUserJoined:
		return decodeFact[UserJoined](env)
	case TypeUserLeft:
		return decodeFact[UserLeft](env)
	case TypeOnlineUsers:
		return decodeFact[OnlineUsers](env)
	case TypeUsersUpdated:
		return decodeFact[UsersUpdated](env)
	case TypeMessage:
		return decodeFact[PublicMessage](env)
	case TypePrivateMessage:
		return decodeFact[PrivateMessage](env)
	case TypeMessageReaction:
		return decodeFact[MessageReaction](env)
	case TypeTyping:
		return decodeFact[Typing](env)
	case TypePrivateTyping:
		return decodeFact[PrivateTyping](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func decodeFact[T Fact](env envelope) (Fact, error) {
	var fact T
	if err := json.Unmarshal(env.Data, &fact); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, env.Type, err)
	}
	return fact, nil
}

func encode(t EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return json.Marshal(envelope{Type: t, Data: data})
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after event")
	}
	return nil
}
