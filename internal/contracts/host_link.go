package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// CommandHostLink carries a command link raised by the preview bundle,
	// forwarded unparsed by the bridge script.
	CommandHostLink = "hostLink"
	// HostLinkPrefix starts every command link the bundle raises in embedded mode.
	HostLinkPrefix = "command:_qmkmapper."
)

// ErrNotHostLink is returned for links outside the bundle's command namespace.
var ErrNotHostLink = errors.New("contracts: not a host command link")

// HostLinkMessage wraps a raw command link.
type HostLinkMessage struct {
	Command string `json:"command"`
	Link    string `json:"link"`
}

// ParseHostLink translates a link such as
// command:_qmkmapper.keymapFromPreview?%7B...%7D into the equivalent socket
// frame. The query is URI-encoded JSON, either the argument itself or an
// argument list whose first element is used.
func ParseHostLink(link string) ([]byte, error) {
	rest, ok := strings.CutPrefix(link, HostLinkPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotHostLink, link)
	}
	name, query, _ := strings.Cut(rest, "?")

	args, err := hostLinkArgs(query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	switch name {
	case CommandConnectedPreview:
		return json.Marshal(IncomingMessage{Command: name})
	case CommandKeymapFromPreview:
		var msg KeymapFromPreviewMessage
		if args != nil {
			if err := json.Unmarshal(args, &msg); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		msg.Command = name
		return json.Marshal(msg)
	case CommandLogging:
		return json.Marshal(LogMessage{Command: name, Payload: args})
	default:
		return nil, fmt.Errorf("unknown host command %q", name)
	}
}

func hostLinkArgs(query string) (json.RawMessage, error) {
	if query == "" {
		return nil, nil
	}
	decoded, err := url.PathUnescape(query)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(decoded)) {
		return nil, fmt.Errorf("arguments are not JSON: %q", decoded)
	}

	args := json.RawMessage(decoded)
	var list []json.RawMessage
	if err := json.Unmarshal(args, &list); err == nil {
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	}
	return args, nil
}
