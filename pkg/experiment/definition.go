// Package experiment handles experiment definition files: the TOML
// documents describing an experiment's informational fields and its
// parameter set.
package experiment

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// UserDefinedIDKey is the mandatory [info] field naming an experiment.
// It is also the column the numeric experiment id is looked up by.
const UserDefinedIDKey = "UserDefinedID"

// Info field names become column names and cannot be bound as
// parameters, so they are held to a strict identifier shape.
var validColumnName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Definition is the parsed form of an experiment definition file.
type Definition struct {
	// UserDefinedID is the human-chosen identifier from the info table.
	UserDefinedID string
	// Info holds every field of the [info] table, UserDefinedID included.
	Info map[string]interface{}
	// Parameters holds the [parameters] key/value pairs.
	Parameters map[string]interface{}
}

type definitionFile struct {
	Info       map[string]interface{} `toml:"info"`
	Parameters map[string]interface{} `toml:"parameters"`
}

// Load reads and validates a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read definition file")
	}

	def, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid definition file %s", path)
	}
	return def, nil
}

// Parse validates a definition document. Both the [info] and
// [parameters] tables must be present, [info] must carry a non-empty
// UserDefinedID string, every value must be a scalar, and every info
// field name must be usable as a column name.
func Parse(data []byte) (*Definition, error) {
	var file definitionFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse TOML")
	}

	if file.Info == nil {
		return nil, errors.New("missing required table [info]")
	}
	if file.Parameters == nil {
		return nil, errors.New("missing required table [parameters]")
	}

	raw, ok := file.Info[UserDefinedIDKey]
	if !ok {
		return nil, errors.Errorf("the [info] table must contain %s", UserDefinedIDKey)
	}
	id, ok := raw.(string)
	if !ok {
		return nil, errors.Errorf("%s must be a string", UserDefinedIDKey)
	}
	if id == "" {
		return nil, errors.Errorf("%s must not be empty", UserDefinedIDKey)
	}

	for name, value := range file.Info {
		if !validColumnName.MatchString(name) {
			return nil, errors.Errorf("info field %q is not a valid column name", name)
		}
		if err := checkScalar(name, value); err != nil {
			return nil, err
		}
	}
	for name, value := range file.Parameters {
		if err := checkScalar(name, value); err != nil {
			return nil, err
		}
	}

	return &Definition{
		UserDefinedID: id,
		Info:          file.Info,
		Parameters:    file.Parameters,
	}, nil
}

func checkScalar(name string, value interface{}) error {
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return errors.Errorf("field %q must be a scalar value", name)
	}
	return nil
}

// InfoColumns returns the info field names in insert order:
// UserDefinedID first, the rest sorted.
func (d *Definition) InfoColumns() []string {
	names := make([]string, 0, len(d.Info))
	for name := range d.Info {
		if name != UserDefinedIDKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return append([]string{UserDefinedIDKey}, names...)
}

// ParameterNames returns the parameter names sorted, so inserts run in
// a stable order.
func (d *Definition) ParameterNames() []string {
	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SQLValue converts a definition value to the text bound into the
// database: booleans become "0"/"1", strings pass through unchanged,
// everything else uses its default textual form.
func SQLValue(value interface{}) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
