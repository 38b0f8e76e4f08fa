package publisher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ConnectionString parsed Azure IoT Hub device connection string
type ConnectionString struct {
	HostName            string
	DeviceID            string
	SharedAccessKey     string
	SharedAccessKeyName string // set for policy keys, empty for device keys
}

// ParseConnectionString parses "HostName=...;DeviceId=...;SharedAccessKey=..."
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		if part == "" {
			continue
		}
		// keys are base64 and may end in '='
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return ConnectionString{}, fmt.Errorf("malformed connection string segment %q", part)
		}
		switch kv[0] {
		case "HostName":
			cs.HostName = kv[1]
		case "DeviceId":
			cs.DeviceID = kv[1]
		case "SharedAccessKey":
			cs.SharedAccessKey = kv[1]
		case "SharedAccessKeyName":
			cs.SharedAccessKeyName = kv[1]
		}
	}

	var missing []string
	if cs.HostName == "" {
		missing = append(missing, "HostName")
	}
	if cs.DeviceID == "" {
		missing = append(missing, "DeviceId")
	}
	if cs.SharedAccessKey == "" {
		missing = append(missing, "SharedAccessKey")
	}
	if len(missing) > 0 {
		return ConnectionString{}, fmt.Errorf("connection string is missing %s", strings.Join(missing, ", "))
	}
	if _, err := base64.StdEncoding.DecodeString(cs.SharedAccessKey); err != nil {
		return ConnectionString{}, errors.New("SharedAccessKey is not valid base64")
	}
	return cs, nil
}

// ResourceURI the token audience for device-to-cloud traffic
func (c ConnectionString) ResourceURI() string {
	return c.HostName + "/devices/" + c.DeviceID
}

// SASToken signs a SharedAccessSignature valid until expiry
func (c ConnectionString) SASToken(expiry time.Time) (string, error) {
	key, err := base64.StdEncoding.DecodeString(c.SharedAccessKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode SharedAccessKey: %w", err)
	}

	sr := url.QueryEscape(c.ResourceURI())
	se := strconv.FormatInt(expiry.Unix(), 10)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sr + "\n" + se))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	token := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s", sr, url.QueryEscape(sig), se)
	if c.SharedAccessKeyName != "" {
		token += "&skn=" + url.QueryEscape(c.SharedAccessKeyName)
	}
	return token, nil
}

// messageProperties encodes the system properties carried with every
// event as "$.ct=...&$.ce=...&$.mid=...". Keys are sent unescaped.
func messageProperties(msg Message) string {
	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+url.QueryEscape(value))
		}
	}
	add("$.ct", msg.ContentType)
	add("$.ce", msg.ContentEncoding)
	add("$.mid", msg.MessageID)
	return strings.Join(parts, "&")
}
