package state

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"invitely/pkg/models"
)

// DeepMerge merges src into dst and returns dst.
//
//   - nested records (map[string]interface{}) are merged recursively
//   - sequences are replaced by a shallow copy of the value from src
//   - every other value (scalars, functions, typed structs, pointers) is
//     stored as is
func DeepMerge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		switch sv := v.(type) {
		case map[string]interface{}:
			dv, ok := dst[k].(map[string]interface{})
			if !ok {
				dv = make(map[string]interface{}, len(sv))
			}
			dst[k] = DeepMerge(dv, sv)
		default:
			dst[k] = shallowCopy(v)
		}
	}
	return dst
}

// assign overwrites the top-level keys of dst with those of src
func assign(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = shallowCopy(v)
	}
	return dst
}

// shallowCopy copies slices so the stored value never shares a backing
// array with the caller; anything else is returned unchanged.
func shallowCopy(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(s))
		copy(out, s)
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.IsNil() {
		return v
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	return out.Interface()
}

// toTree converts a project into its generic JSON tree
func toTree(p models.Project) (map[string]interface{}, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// fromTree converts a (possibly partially typed) tree back into a project
func fromTree(tree map[string]interface{}) (models.Project, error) {
	var p models.Project
	data, err := json.Marshal(tree)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}

// lookup walks a dot path ("slides.0.layers.1.text") through a JSON tree
func lookup(tree interface{}, path string) (interface{}, bool) {
	if path == "" {
		return tree, true
	}
	cur := tree
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
