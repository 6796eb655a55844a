package orglifecycle

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/eventhub/internal/app/system/apperr"
	"github.com/dalemusser/eventhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/eventhub/internal/app/system/reminders"
	"github.com/dalemusser/eventhub/internal/app/system/tenancy"
	"github.com/dalemusser/eventhub/internal/app/system/timeouts"
	"github.com/dalemusser/eventhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Keys a patch may not touch. They are derived, structural, or owned by the
// membership directory.
var protectedKeys = map[string]bool{
	"_id":             true,
	"id":              true,
	"owner_id":        true,
	"members":         true,
	"parent_id":       true,
	"name_lower":      true,
	"name_ci":         true,
	"idempotency_key": true,
	"created_at":      true,
	"updated_at":      true,
	"event_count":     true,
}

// Update deep-merges patch into the stored organization and writes back
// only the top-level keys the patch names, plus the derived name keys and
// updated_at. Nested objects merge key by key; any other value replaces what
// was there, and a null removes the key. Concurrent updates of the same key
// are last-writer-wins; keys outside the patch, including the members map,
// are never rewritten.
func (s *Service) Update(ctx context.Context, sess *tenancy.Session, id primitive.ObjectID, patch map[string]interface{}) (org models.Organization, err error) {
	defer func() { s.metrics.ObserveOrgLifecycle("update", err) }()

	if !sess.Resolver().CanManageOrganization(id) {
		return models.Organization{}, apperr.Denied("not allowed to update organization %s", id.Hex())
	}
	clean, err := cleanPatch(patch)
	if err != nil {
		return models.Organization{}, err
	}

	uid := sess.UserID()
	log := s.log.With(zap.String("user_id", uid), zap.String("org_id", id.Hex()))

	gctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "load organization document")
	doc, err := s.orgs.GetDocument(gctx, id)
	cancel()
	if err != nil {
		return models.Organization{}, apperr.FromStore(err, "organization", id.Hex())
	}

	set, unset := changedKeys(deepMerge(doc, clean), clean)
	if name, ok := clean["name"].(string); ok {
		set["name_lower"] = strings.ToLower(name)
		set["name_ci"] = text.Fold(name)
	}
	set["updated_at"] = time.Now().UTC()

	wctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), log, "update organization fields")
	stored, err := s.orgs.UpdateFields(wctx, id, set, unset)
	cancel()
	if err != nil {
		log.Error("update organization failed", zap.Error(err))
		return models.Organization{}, apperr.FromStore(err, "organization", id.Hex())
	}

	org, err = decodeOrganization(stored)
	if err != nil {
		return models.Organization{}, err
	}
	sess.UpdateOrganization(org)

	fields := make([]string, 0, len(clean))
	for k := range clean {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	s.audit.OrgUpdated(ctx, uid, id, strings.Join(fields, ","))
	log.Info("organization updated", zap.Strings("fields", fields))
	return org, nil
}

func decodeOrganization(doc bson.M) (models.Organization, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return models.Organization{}, err
	}
	var org models.Organization
	if err := bson.Unmarshal(raw, &org); err != nil {
		return models.Organization{}, err
	}
	org.Normalize()
	return org, nil
}

// cleanPatch validates a client patch and returns a copy with user text
// sanitized and numeric lists converted to their stored types.
func cleanPatch(patch map[string]interface{}) (map[string]interface{}, error) {
	if len(patch) == 0 {
		return nil, apperr.Invalid("patch is empty")
	}
	out := make(map[string]interface{}, len(patch))
	for k, v := range patch {
		if protectedKeys[k] {
			return nil, apperr.Invalid("field %q cannot be changed", k)
		}
		switch k {
		case "name":
			str, ok := v.(string)
			name := htmlsanitize.PlainText(str)
			if !ok || name == "" {
				return nil, apperr.Invalid("organization name is required")
			}
			out[k] = name
		case "description":
			if v == nil {
				out[k] = nil
				continue
			}
			str, ok := v.(string)
			if !ok {
				return nil, apperr.Invalid("description must be a string")
			}
			out[k] = htmlsanitize.PlainText(str)
		case "settings":
			settings, ok := v.(map[string]interface{})
			if !ok {
				return nil, apperr.Invalid("settings must be an object")
			}
			cs, err := cleanSettings(settings)
			if err != nil {
				return nil, err
			}
			out[k] = cs
		default:
			out[k] = v
		}
	}
	return out, nil
}

func cleanSettings(in map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch k {
		case "default_reminder_times":
			if v == nil {
				out[k] = nil
				continue
			}
			offsets, err := toInts(v)
			if err != nil {
				return nil, err
			}
			if offsets, err = reminders.NormalizeOffsets(offsets); err != nil {
				return nil, err
			}
			out[k] = offsets
		case "time_zone":
			str, ok := v.(string)
			if !ok && v != nil {
				return nil, apperr.Invalid("settings.time_zone must be a string")
			}
			if str != "" {
				if _, err := time.LoadLocation(str); err != nil {
					return nil, apperr.Invalid("settings.time_zone %q is not a known time zone", str)
				}
			}
			out[k] = v
		case "contact_info":
			str, ok := v.(string)
			if !ok && v != nil {
				return nil, apperr.Invalid("settings.contact_info must be a string")
			}
			if ok {
				out[k] = htmlsanitize.PlainText(str)
			} else {
				out[k] = nil
			}
		default:
			out[k] = v
		}
	}
	return out, nil
}

func toInts(v interface{}) ([]int, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, apperr.Invalid("default_reminder_times must be a list of minutes")
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		f, ok := item.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, apperr.Invalid("default_reminder_times must contain whole minutes")
		}
		out = append(out, int(f))
	}
	return out, nil
}

// changedKeys splits the patched top-level keys of merged into values to set
// and keys to unset.
func changedKeys(merged bson.M, patch map[string]interface{}) (bson.M, []string) {
	set := bson.M{}
	var unset []string
	for k := range patch {
		if v, ok := merged[k]; ok {
			set[k] = v
		} else {
			unset = append(unset, k)
		}
	}
	sort.Strings(unset)
	return set, unset
}

// deepMerge returns dst with patch applied. Objects on both sides merge
// recursively; a nil patch value deletes the key.
func deepMerge(dst bson.M, patch map[string]interface{}) bson.M {
	out := make(bson.M, len(dst)+len(patch))
	for k, v := range dst {
		out[k] = v
	}
	for k, pv := range patch {
		if pv == nil {
			delete(out, k)
			continue
		}
		pm, pIsMap := asMap(pv)
		dm, dIsMap := asMap(out[k])
		if pIsMap && dIsMap {
			out[k] = deepMerge(dm, pm)
			continue
		}
		if pIsMap {
			out[k] = deepMerge(bson.M{}, pm)
			continue
		}
		out[k] = pv
	}
	return out
}

func asMap(v interface{}) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return bson.M(m), true
	case primitive.D:
		out := make(bson.M, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	}
	return nil, false
}
