package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	fed "github.com/san-kum/cosim/internal/federation"
)

type MsgType uint16

const (
	MsgRegister MsgType = iota + 1
	MsgRegisterPublication
	MsgRegisterSubscription
	MsgEnterExecuting
	MsgRequestTime
	MsgPublish
	MsgFinalize
	MsgOK
	MsgError
)

func (t MsgType) String() string {
	switch t {
	case MsgRegister:
		return "register"
	case MsgRegisterPublication:
		return "register_publication"
	case MsgRegisterSubscription:
		return "register_subscription"
	case MsgEnterExecuting:
		return "enter_executing"
	case MsgRequestTime:
		return "request_time"
	case MsgPublish:
		return "publish"
	case MsgFinalize:
		return "finalize"
	case MsgOK:
		return "ok"
	case MsgError:
		return "error"
	default:
		return fmt.Sprintf("msg(%d)", uint16(t))
	}
}

type RegisterBody struct {
	Info fed.FederateInfo `msgpack:"info"`
}

type IDBody struct {
	ID fed.FederateID `msgpack:"id"`
}

type PublicationBody struct {
	Spec fed.PublicationSpec `msgpack:"spec"`
}

type SubscriptionBody struct {
	Spec fed.SubscriptionSpec `msgpack:"spec"`
}

type HandleBody struct {
	Handle fed.Handle `msgpack:"handle"`
}

type TimeBody struct {
	Time fed.Time `msgpack:"time"`
}

type GrantBody struct {
	Grant fed.Grant `msgpack:"grant"`
}

type PublishBody struct {
	Handle fed.Handle `msgpack:"handle"`
	Value  float64    `msgpack:"value"`
}

type ErrorBody struct {
	Code    string `msgpack:"code"`
	Message string `msgpack:"message"`
}

// Encode builds a frame carrying body. A nil body gives an empty payload.
func Encode(t MsgType, id uint64, body any) (Frame, error) {
	f := Frame{Header: Header{Type: t, MessageID: id}}
	if body == nil {
		return f, nil
	}
	payload, err := msgpack.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encode %s: %w", t, err)
	}
	f.Payload = payload
	return f, nil
}

func Decode(f Frame, out any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(f.Payload, out); err != nil {
		return fmt.Errorf("wire: decode %s: %w", f.Header.Type, err)
	}
	return nil
}

// ErrorFrame encodes err as an error response to message id.
func ErrorFrame(id uint64, err error) Frame {
	f, encErr := Encode(MsgError, id, ErrorBody{Code: fed.ErrorCode(err), Message: err.Error()})
	if encErr != nil {
		return Frame{Header: Header{Type: MsgError, MessageID: id}}
	}
	return f
}

// AsError turns an error response back into an error.
func AsError(f Frame) error {
	var body ErrorBody
	if err := Decode(f, &body); err != nil {
		return err
	}
	return fed.ErrorFromCode(body.Code, body.Message)
}
