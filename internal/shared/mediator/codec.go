package mediator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Decoder turns a raw message payload into a Request.
type Decoder func(payload []byte) (Request, error)

// Codec maps message types to payload decoders so broker consumers can turn
// inbound bytes into requests without knowing the concrete types.
type Codec struct {
	decoders map[string]Decoder
	origins  map[string]string
}

func NewCodec() *Codec {
	return &Codec{
		decoders: make(map[string]Decoder),
		origins:  make(map[string]string),
	}
}

func (c *Codec) Register(messageType string, decoder Decoder) error {
	return c.register(messageType, decoder, captureOrigin(2))
}

func (c *Codec) register(messageType string, decoder Decoder, origin string) error {
	messageType = strings.TrimSpace(messageType)
	if messageType == "" || decoder == nil {
		return fmt.Errorf("%w: decoder requires a message type and function", ErrConfiguration)
	}
	if _, found := c.decoders[messageType]; found {
		return fmt.Errorf("%w: decoder for %q (first at %s)", ErrDuplicateHandler, messageType, c.origins[messageType])
	}
	c.decoders[messageType] = decoder
	c.origins[messageType] = origin
	return nil
}

// RegisterJSON registers a JSON decoder keyed by the request's own name.
func RegisterJSON[Req Request](c *Codec) error {
	var zero Req
	name := zero.RequestName()
	return c.register(name, func(payload []byte) (Request, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUndecodable, name, err)
		}
		return req, nil
	}, captureOrigin(2))
}

// Decode returns ErrNoHandler for unknown message types and ErrUndecodable
// for payloads the registered decoder rejects.
func (c *Codec) Decode(messageType string, payload []byte) (Request, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: no decoder for %q", ErrNoHandler, messageType)
	}
	decoder, found := c.decoders[messageType]
	if !found {
		return nil, fmt.Errorf("%w: no decoder for %q", ErrNoHandler, messageType)
	}
	req, err := decoder(payload)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s decoded to nil", ErrUndecodable, messageType)
	}
	return req, nil
}

func (c *Codec) MessageTypes() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.decoders))
	for messageType := range c.decoders {
		out = append(out, messageType)
	}
	sort.Strings(out)
	return out
}
