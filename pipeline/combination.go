package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoCombinations is returned when every combination of alternatives has been filtered out.
var ErrNoCombinations = errors.New("no combinations of alternatives to run")

// Alternatives holds, for every parameter, the values it should take.
type Alternatives map[string][]string

// Combination is one choice of value for every parameter.
type Combination map[string]string

// CombinationFilter reports whether a combination should be run.
type CombinationFilter func(Combination) bool

// Value returns the value of a parameter, or the empty string.
func (c Combination) Value(name string) string {
	return c[name]
}

// Float parses the parameter as a float.
func (c Combination) Float(name string) (float64, error) {
	v, ok := c[name]
	if !ok {
		return 0, errors.Wrap(ErrUnknownParameter, name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", name)
	}
	return f, nil
}

// Int parses the parameter as an integer.
func (c Combination) Int(name string) (int, error) {
	v, ok := c[name]
	if !ok {
		return 0, errors.Wrap(ErrUnknownParameter, name)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", name)
	}
	return i, nil
}

// Bool parses the parameter as a boolean.
func (c Combination) Bool(name string) (bool, error) {
	v, ok := c[name]
	if !ok {
		return false, errors.Wrap(ErrUnknownParameter, name)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "parameter %s", name)
	}
	return b, nil
}

// Subset returns a copy of the combination restricted to the named parameters.
func (c Combination) Subset(names []string) Combination {
	s := make(Combination, len(names))
	for _, n := range names {
		if v, ok := c[n]; ok {
			s[n] = v
		}
	}
	return s
}

// Key is a canonical representation of the combination, e.g. "a=1;b=x". Parameters are sorted by
// name.
func (c Combination) Key() string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + c[n]
	}
	return strings.Join(parts, ";")
}

// Hash returns a stable hex digest of the combination key.
func (c Combination) Hash() string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(c.Key())))
}

// Label renders the values of the given parameters in order, separated by "/". It is used to name
// combinations in tables and plots.
func (c Combination) Label(params []string) string {
	vals := make([]string, 0, len(params))
	for _, p := range params {
		vals = append(vals, c[p])
	}
	return strings.Join(vals, "/")
}

// Varying returns the parameters that have more than one alternative, in the given order.
func (a Alternatives) Varying(order []string) []string {
	var v []string
	for _, p := range order {
		if len(a[p]) > 1 {
			v = append(v, p)
		}
	}
	return v
}

// Combinations enumerates every combination of alternatives for the pipeline. The first step's
// parameters vary slowest, so combinations that share the same early steps are adjacent. If
// filter is non-nil only the combinations it accepts are returned.
func Combinations(d *Definition, alternatives Alternatives, filter CombinationFilter) ([]Combination, error) {
	if err := d.Validate(alternatives); err != nil {
		return nil, err
	}
	params := d.Parameters()

	n := 1
	for _, p := range params {
		n *= len(alternatives[p])
	}

	combinations := make([]Combination, 0, n)
	idx := make([]int, len(params))
	for i := 0; i < n; i++ {
		c := make(Combination, len(params))
		for j, p := range params {
			c[p] = alternatives[p][idx[j]]
		}
		if filter == nil || filter(c) {
			combinations = append(combinations, c)
		}
		// Increment the mixed-radix counter, last parameter fastest.
		for j := len(params) - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < len(alternatives[params[j]]) {
				break
			}
			idx[j] = 0
		}
	}

	if len(combinations) == 0 {
		return nil, ErrNoCombinations
	}
	return combinations, nil
}

// prefixKey identifies the parameters used by the steps up to and including step i.
func prefixKey(d *Definition, c Combination, i int) string {
	var params []string
	for _, s := range d.Steps[:i+1] {
		params = append(params, s.Parameters...)
	}
	return fmt.Sprintf("%d|%s", i, c.Subset(params).Key())
}
