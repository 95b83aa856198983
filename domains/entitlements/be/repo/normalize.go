// Package repo adapts the user document store to the entitlements service.
// Raw documents are normalized into the fixed UserEntitlementRecord shape at
// this boundary; the calculator never branches on document shape.
package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bazaarhq/storefront-saas/domains/entitlements/be/service"
	"github.com/bazaarhq/storefront-saas/platform/go/plan"
)

// Two document shapes exist in the wild: the current flat layout and the
// legacy layout that nested trial state under a "trial" object and the
// discount flag under "discount". Both are accepted here and nowhere else.
const userRecordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "tenantId": {"type": "string"},
    "planTier": {"type": "string"},
    "plan": {"type": "string"},
    "planActive": {"type": "boolean"},
    "trialEngaged": {"type": "boolean"},
    "trialStartedAt": {"type": ["string", "number", "null"]},
    "trialEndsAt": {"type": ["string", "number", "null"]},
    "trialEverUsed": {"type": "boolean"},
    "discountApplied": {"type": "boolean"},
    "trial": {
      "type": "object",
      "properties": {
        "engaged": {"type": "boolean"},
        "startedAt": {"type": ["string", "number", "null"]},
        "endsAt": {"type": ["string", "number", "null"]},
        "used": {"type": "boolean"}
      }
    },
    "discount": {
      "type": "object",
      "properties": {
        "applied": {"type": "boolean"}
      }
    }
  }
}`

var compiledUserRecordSchema = jsonschema.MustCompileString("user-record.json", userRecordSchema)

// NormalizeUserRecord validates a raw user document and maps it onto the
// fixed record shape. Unknown fields are ignored; type violations are errors.
func NormalizeUserRecord(userID string, doc map[string]any) (service.UserEntitlementRecord, error) {
	plainDoc := jsonify(doc).(map[string]any)
	if err := compiledUserRecordSchema.Validate(plainDoc); err != nil {
		return service.UserEntitlementRecord{}, fmt.Errorf("user document %s has invalid shape: %w", userID, err)
	}

	rec := service.UserEntitlementRecord{UserID: userID}

	if raw, ok := plainDoc["tenantId"].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			rec.TenantID = id
		}
	}

	tier, _ := plainDoc["planTier"].(string)
	if tier == "" {
		// legacy field name
		tier, _ = plainDoc["plan"].(string)
	}
	rec.PlanTier = plan.ParseTier(tier)

	rec.PlanActive, _ = plainDoc["planActive"].(bool)

	if trial, ok := plainDoc["trial"].(map[string]any); ok {
		rec.TrialEngaged, _ = trial["engaged"].(bool)
		rec.TrialStartedAt = timeField(trial["startedAt"])
		rec.TrialEndsAt = timeField(trial["endsAt"])
		rec.TrialEverUsed, _ = trial["used"].(bool)
	} else {
		rec.TrialEngaged, _ = plainDoc["trialEngaged"].(bool)
		rec.TrialStartedAt = timeField(plainDoc["trialStartedAt"])
		rec.TrialEndsAt = timeField(plainDoc["trialEndsAt"])
		rec.TrialEverUsed, _ = plainDoc["trialEverUsed"].(bool)
	}

	if discount, ok := plainDoc["discount"].(map[string]any); ok {
		rec.DiscountApplied, _ = discount["applied"].(bool)
	} else {
		rec.DiscountApplied, _ = plainDoc["discountApplied"].(bool)
	}

	return rec, nil
}

// jsonify converts store-native values (time.Time, int64, nested maps) into
// plain JSON types so the schema validator can see them.
func jsonify(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonify(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonify(item)
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}

// timeField decodes a timestamp that may arrive as an RFC3339 string or as
// epoch milliseconds (legacy documents). Nil or unparseable values map to nil.
func timeField(v any) *time.Time {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			t = t.UTC()
			return &t
		}
		return nil
	case float64:
		t := time.UnixMilli(int64(val)).UTC()
		return &t
	default:
		return nil
	}
}
