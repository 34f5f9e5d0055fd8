package events

import (
	"encoding/json"
	"fmt"
)

// registry is the closed set of event kinds the service understands. Decoding
// goes through this table instead of reflection so an unknown kind is an
// explicit, checkable condition.
var registry = map[string]func() Event{
	KindAccountOpened:     func() Event { return &AccountOpened{} },
	KindMoneyCredited:     func() Event { return &MoneyCredited{} },
	KindMoneyDebited:      func() Event { return &MoneyDebited{} },
	KindTransferCompleted: func() Event { return &TransferCompleted{} },
	KindInterestAccrued:   func() Event { return &InterestAccrued{} },
	KindClientBlocked:     func() Event { return &ClientBlocked{} },
	KindClientUnblocked:   func() Event { return &ClientUnblocked{} },
}

// ErrUnknownKind is returned by Decode for kinds outside the registry.
type ErrUnknownKind struct {
	Kind string
}

func (e ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown event kind %q", e.Kind)
}

// Known reports whether kind belongs to the registry.
func Known(kind string) bool {
	_, ok := registry[kind]
	return ok
}

// Decode unmarshals payload into the concrete event type for kind.
func Decode(kind string, payload []byte) (Event, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, ErrUnknownKind{Kind: kind}
	}
	evt := factory()
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return evt, nil
}

// Encode marshals an event for outbox storage or broker transport.
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}
