package realtime

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Channel names a change feed.
type Channel string

const (
	ChannelOrders      Channel = "orders"
	ChannelWaiterCalls Channel = "waiter_calls"
)

// Action is the row-level change kind.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) valid() bool {
	return a == ActionInsert || a == ActionUpdate || a == ActionDelete
}

// Envelope is one change-feed message. Record holds the row as raw JSON.
type Envelope struct {
	Channel      Channel
	Action       Action
	RestaurantID string
	Record       jx.Raw
	At           time.Time
}

// Encode writes the envelope as a JSON object.
func (e Envelope) Encode() []byte {
	var w jx.Writer
	w.ObjStart()
	w.FieldStart("channel")
	w.Str(string(e.Channel))
	w.FieldStart("action")
	w.Str(string(e.Action))
	w.FieldStart("restaurant_id")
	w.Str(e.RestaurantID)
	w.FieldStart("at")
	w.Str(e.At.UTC().Format(time.RFC3339Nano))
	w.FieldStart("record")
	if len(e.Record) == 0 {
		w.Null()
	} else {
		w.Raw(e.Record)
	}
	w.ObjEnd()
	return w.Buf
}

// DecodeEnvelope parses a message produced by Encode. Unknown fields are skipped.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "channel":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "channel")
			}
			e.Channel = Channel(v)
		case "action":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "action")
			}
			e.Action = Action(v)
		case "restaurant_id":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "restaurant_id")
			}
			e.RestaurantID = v
		case "at":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "at")
			}
			at, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return errors.Wrap(err, "parse at")
			}
			e.At = at
		case "record":
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, "record")
			}
			e.Record = append(jx.Raw(nil), raw...)
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}

	if !e.Action.valid() {
		return Envelope{}, errors.Errorf("unknown action %q", e.Action)
	}
	if e.Record.Type() != jx.Object {
		return Envelope{}, errors.New("record must be an object")
	}
	return e, nil
}
