package inbox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/orderbridge-backend/pkg/enums"
)

// DedupeKey returns the stable identifier under which the inbox guarantees
// at-most-once storage. Upstream retransmits carry the same upstream id and
// collapse on the preferred path; producers without a retry id collapse on a
// content hash of the event instead.
func DedupeKey(source enums.EventSource, upstreamID, orderID string, eventType enums.EventType, eventTs time.Time, payload json.RawMessage) string {
	if id := strings.TrimSpace(upstreamID); id != "" {
		return fmt.Sprintf("%s:%s", source, id)
	}

	canonical := fmt.Sprintf("%s|%s|%s|%s|%s",
		source,
		orderID,
		eventType,
		eventTs.UTC().Format(time.RFC3339),
		stableHash(payload),
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// stableHash is a SHA-256 over a canonical JSON serialization whose object
// keys are sorted lexicographically at every depth, so logically equal
// payloads produce bit-equal input.
func stableHash(payload json.RawMessage) string {
	var sum [32]byte
	if len(payload) == 0 {
		sum = sha256.Sum256(nil)
		return hex.EncodeToString(sum[:])
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		// Not JSON; hash the raw bytes instead.
		sum = sha256.Sum256(payload)
		return hex.EncodeToString(sum[:])
	}

	var buf bytes.Buffer
	writeCanonical(&buf, value)
	sum = sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			buf.Write(encoded)
			buf.WriteByte(':')
			writeCanonical(buf, v[k])
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(v.String())
	default:
		encoded, _ := json.Marshal(v)
		buf.Write(encoded)
	}
}
