package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// SerializeArgs renders tool arguments in a deterministic, order-stable
// string form: "key=value" pairs joined by single spaces with keys in
// ascending order. Scalars render via strconv; composite values render
// as compact JSON. Two calls with the same logical arguments always
// serialize identically. This form is the contract that argument
// patterns in approval rules match against.
func SerializeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += k + "=" + stringifyArg(args[k])
	}
	return out
}

// ArgValues returns the serialized value of each argument, keys in
// ascending order. Argument patterns that carry no '=' are also tried
// against each value individually, so a rule like
// {name: "impl:terminal:run_command", args: "rm -rf /*"} matches on the
// command string alone.
func ArgValues(args map[string]any) []string {
	if len(args) == 0 {
		return nil
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, stringifyArg(args[k]))
	}
	return values
}

func stringifyArg(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// JSON decoding yields float64 for all numbers; render integral
		// values without a trailing ".0" so patterns stay intuitive.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
