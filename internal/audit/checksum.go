// Package audit records tamper-evident audit logs, security events, and
// data access logs. Recording never fails a request: persistence errors are
// logged and swallowed.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/d9705996/granthub/internal/model"
)

// Checksum computes the SHA-256 hex digest over a canonical JSON
// serialization of the log's identifying fields. encoding/json emits map
// keys in sorted order, which is exactly the canonical form; the timestamp
// is rendered in UTC RFC 3339 with nanoseconds so recomputation from the
// stored row reproduces the digest byte for byte.
func Checksum(l *model.AuditLog) string {
	payload := map[string]any{
		"user_id":       l.UserID,
		"action":        l.Action,
		"resource_type": l.ResourceType,
		"resource_id":   l.ResourceID,
		"old_values":    l.OldValues,
		"new_values":    l.NewValues,
		"ip_address":    l.IPAddress,
		"timestamp":     l.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		// Only unmarshalable values in Old/NewValues can get here, and
		// JSONMap round-trips through the serializer before that.
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum recomputes the digest and compares it to the stored one.
func VerifyChecksum(l *model.AuditLog) bool {
	return l.Checksum != "" && Checksum(l) == l.Checksum
}
