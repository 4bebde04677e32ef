package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// mustBind binds config keys to flags of fs. A missing flag is a
// programming error.
func mustBind(fs *pflag.FlagSet, bindings map[string]string) {
	for key, name := range bindings {
		flag := fs.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("cmd: no flag %q to bind to %q", name, key))
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			panic(err)
		}
	}
}

// enumValue is a string flag restricted to a fixed set of values.
type enumValue struct {
	value   string
	allowed []string
}

var _ pflag.Value = (*enumValue)(nil)

func newEnum(def string, allowed ...string) *enumValue {
	return &enumValue{value: def, allowed: allowed}
}

func (e *enumValue) String() string { return e.value }

func (e *enumValue) Set(s string) error {
	for _, a := range e.allowed {
		if s == a {
			e.value = s
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(e.allowed, ", "))
}

func (e *enumValue) Type() string { return "string" }
