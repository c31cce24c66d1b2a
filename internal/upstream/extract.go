package upstream

import "encoding/json"

// grantedItem is what a grant response yields once normalized. ItemID may be
// empty when the layout only carries the instance id.
type grantedItem struct {
	InstanceID string
	ItemID     string
}

type itemFields struct {
	ItemInstanceID string `json:"ItemInstanceId"`
	ItemID         string `json:"ItemId"`
}

// instanceLayout is one historical shape of the grant function result.
type instanceLayout struct {
	name  string
	match func(result map[string]json.RawMessage) (grantedItem, bool)
}

// instanceLayouts are tried in order; the first one yielding a non-empty
// instance id wins. New server shapes are appended here.
var instanceLayouts = []instanceLayout{
	{name: "grantedItems", match: firstOfList("grantedItems")},
	{name: "ItemGrantResults", match: firstOfList("ItemGrantResults")},
	{name: "flat", match: flatFields},
}

func firstOfList(key string) func(map[string]json.RawMessage) (grantedItem, bool) {
	return func(result map[string]json.RawMessage) (grantedItem, bool) {
		raw, ok := result[key]
		if !ok {
			return grantedItem{}, false
		}
		var items []itemFields
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			return grantedItem{}, false
		}
		if items[0].ItemInstanceID == "" {
			return grantedItem{}, false
		}
		return grantedItem{InstanceID: items[0].ItemInstanceID, ItemID: items[0].ItemID}, true
	}
}

func flatFields(result map[string]json.RawMessage) (grantedItem, bool) {
	instanceID := stringField(result, "itemInstanceId")
	if instanceID == "" {
		return grantedItem{}, false
	}
	return grantedItem{InstanceID: instanceID, ItemID: stringField(result, "itemId")}, true
}

func stringField(result map[string]json.RawMessage, key string) string {
	raw, ok := result[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// extractGrantedItem normalizes a grant FunctionResult. It returns the name
// of the matching layout, or false when no layout matched.
func extractGrantedItem(functionResult json.RawMessage) (grantedItem, string, bool) {
	var result map[string]json.RawMessage
	if err := json.Unmarshal(functionResult, &result); err != nil || result == nil {
		return grantedItem{}, "", false
	}
	for _, layout := range instanceLayouts {
		if item, ok := layout.match(result); ok {
			return item, layout.name, true
		}
	}
	return grantedItem{}, "", false
}
