package counters

import (
	"fmt"
	"regexp"
	"strconv"
)

// A comparison against a counter value, written like ">=5".
type Condition struct {
	Op    string
	Value int
}

var conditionRegex = regexp.MustCompile(`^\s*(=|!=|>=|<=|>|<)\s*(-?\d+)\s*$`)

func ParseCondition(raw string) (Condition, error) {
	m := conditionRegex.FindStringSubmatch(raw)
	if m == nil {
		return Condition{}, fmt.Errorf("invalid counter condition: %q", raw)
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return Condition{}, fmt.Errorf("invalid counter condition value: %q", raw)
	}
	return Condition{Op: m[1], Value: v}, nil
}

func (c Condition) Check(val int) bool {
	switch c.Op {
	case "=":
		return val == c.Value
	case "!=":
		return val != c.Value
	case ">":
		return val > c.Value
	case "<":
		return val < c.Value
	case ">=":
		return val >= c.Value
	case "<=":
		return val <= c.Value
	}
	return false
}

// The condition which holds exactly when c does not.
func (c Condition) Negate() Condition {
	ops := map[string]string{
		"=":  "!=",
		"!=": "=",
		">":  "<=",
		"<=": ">",
		"<":  ">=",
		">=": "<",
	}
	return Condition{Op: ops[c.Op], Value: c.Value}
}

func (c Condition) String() string {
	return c.Op + strconv.Itoa(c.Value)
}
