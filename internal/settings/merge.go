package settings

import (
	"encoding/json"
	"fmt"
	"time"
)

// Merge overlays a JSON document onto base. Objects merge recursively when
// base has a value for the key; any other value (arrays included) replaces.
func Merge(base GlobalConfig, overrides []byte) (GlobalConfig, error) {
	var over map[string]interface{}
	if err := json.Unmarshal(overrides, &over); err != nil {
		return GlobalConfig{}, fmt.Errorf("settings: merge: %w", err)
	}
	return mergeMap(base, over)
}

func mergeMap(base GlobalConfig, over map[string]interface{}) (GlobalConfig, error) {
	baseMap, err := toMap(base)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("settings: merge: %w", err)
	}
	merged := deepMerge(baseMap, over)
	data, err := json.Marshal(merged)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("settings: merge: %w", err)
	}
	var out GlobalConfig
	if err := json.Unmarshal(data, &out); err != nil {
		return GlobalConfig{}, fmt.Errorf("settings: merge: %w", err)
	}
	if out.Platforms == nil {
		out.Platforms = map[string]PlatformConfig{}
	}
	if out.Automations == nil {
		out.Automations = map[string]AutomationConfig{}
	}
	return out, nil
}

func deepMerge(base, over map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		ov, isObj := v.(map[string]interface{})
		bv, baseObj := base[k].(map[string]interface{})
		if isObj && baseObj {
			out[k] = deepMerge(bv, ov)
			continue
		}
		out[k] = v
	}
	return out
}

func toMap(cfg GlobalConfig) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ApplySave computes the configuration that results from saving incoming
// while current is in effect:
//   - enabledAt is stamped with now when the master switch or a platform
//     switch goes from off to on (disabling never clears it),
//   - the document is merged over the defaults,
//   - nextRun is reset to now+interval for automations that were just
//     enabled or whose interval changed while enabled.
func ApplySave(current GlobalConfig, incoming []byte, now time.Time) (GlobalConfig, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(incoming, &doc); err != nil {
		return GlobalConfig{}, fmt.Errorf("settings: save: %w", err)
	}
	if doc == nil {
		return GlobalConfig{}, fmt.Errorf("settings: save: config must be a JSON object")
	}
	ms := Millis(now)

	if truthy(doc["enabled"]) && !current.Enabled {
		doc["enabledAt"] = ms
	}
	if plats, ok := doc["platforms"].(map[string]interface{}); ok {
		for id, raw := range plats {
			plat, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			old, existed := current.Platforms[id]
			if truthy(plat["enabled"]) && (!existed || !old.Enabled) {
				plat["enabledAt"] = ms
			}
		}
	}

	next, err := mergeMap(Defaults(), doc)
	if err != nil {
		return GlobalConfig{}, err
	}

	for id, a := range next.Automations {
		if !a.Enabled || a.IntervalHours <= 0 {
			continue
		}
		old, existed := current.Automations[id]
		if !existed || !old.Enabled || old.IntervalHours != a.IntervalHours {
			a.NextRun = ms + a.Interval().Milliseconds()
			next.Automations[id] = a
		}
	}
	return next, nil
}

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}
