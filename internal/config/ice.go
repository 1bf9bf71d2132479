package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"github.com/Maolipeng/web-drop/internal/dns"
)

// ErrInvalidICEServers is returned when ICE_SERVERS_JSON cannot be parsed.
var ErrInvalidICEServers = errors.New("Invalid ICE_SERVERS_JSON")

const discoverTimeout = 5 * time.Second

// URLList holds ICE server URLs. Browsers accept either a single string or an
// array for "urls", so both forms decode.
type URLList []string

func (l *URLList) UnmarshalJSON(data []byte) error {
	var one string
	if err := sonic.Unmarshal(data, &one); err == nil {
		*l = URLList{one}
		return nil
	}
	var many []string
	if err := sonic.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("urls must be a string or a list of strings: %w", err)
	}
	*l = many
	return nil
}

func (l *URLList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = URLList{node.Value}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return err
	}
	*l = many
	return nil
}

// ICEServer mirrors the browser's RTCIceServer dictionary.
type ICEServer struct {
	URLs       URLList `json:"urls" yaml:"urls"`
	Username   string  `json:"username,omitempty" yaml:"username,omitempty"`
	Credential string  `json:"credential,omitempty" yaml:"credential,omitempty"`
}

// ParseICEServersJSON decodes an explicit ICE server list. A well-formed value
// that is not an array reports ok=false so the caller falls back to the list
// built from individual settings.
func ParseICEServersJSON(raw string) (servers []ICEServer, ok bool, err error) {
	var parsed any
	if err := sonic.UnmarshalString(raw, &parsed); err != nil {
		return nil, false, ErrInvalidICEServers
	}
	if _, isList := parsed.([]any); !isList {
		return nil, false, nil
	}
	if err := sonic.UnmarshalString(raw, &servers); err != nil {
		return nil, false, ErrInvalidICEServers
	}
	return servers, true, nil
}

// splitList splits a comma-separated setting, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ConfigURL derives the relay's /config address from its websocket URL.
func ConfigURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/config"
	u.RawQuery = ""
	return u.String(), nil
}

// DiscoverICEServers asks the relay for its ICE server list.
func DiscoverICEServers(ctx context.Context, serverURL string) ([]ICEServer, error) {
	endpoint, err := ConfigURL(serverURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Transport: &http.Transport{DialContext: dns.DialContext}}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching ICE servers: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("reading ICE servers: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching ICE servers: %s", resp.Status)
	}

	var doc struct {
		ICEServers []ICEServer `json:"iceServers"`
	}
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding ICE servers: %w", err)
	}
	return doc.ICEServers, nil
}
